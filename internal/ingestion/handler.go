package ingestion

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/cartwatch-lab/cartwatch/internal/api/v1"
	httperr "github.com/cartwatch-lab/cartwatch/internal/core/errors"
	"github.com/cartwatch-lab/cartwatch/internal/core/funnel"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgEventProcessed = "event processed"
)

// ingestionError carries the structured HTTP error shape from a helper back to
// the orchestrator. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles HTTP POST requests for funnel events. Malformed events
// are rejected here; a well-formed event always reaches the ledger and always
// yields a success response — delivery problems downstream are the sink's
// concern, never the submitter's.
func (s *Service) IngestHandler(c *gin.Context) {
	evt, payloadSize, ierr := s.parseEvent(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	if err := evt.Validate(); err != nil {
		slog.Warn("Event validation failed", "error", err, "payload_size", payloadSize)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    err.Error(),
		})
		return
	}

	applyDefaults(evt)

	slog.Info("Received event",
		"event_id", evt.ID,
		"user_id", evt.UserID,
		"event_type", evt.EventType,
		"product_id", evt.ProductID,
		"payload_size", payloadSize)

	s.ledger.ProcessEvent(c.Request.Context(), evt)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": msgEventProcessed,
		"eventId": evt.ID,
		"status":  funnel.StatusForEventType(evt.EventType),
	})
}

// parseEvent reads the raw request body and binds it into a PurchaseEvent.
// Returns the parsed event and the raw payload size (used for structured
// logging upstream).
func (s *Service) parseEvent(c *gin.Context) (*v1.PurchaseEvent, int, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpPayloadTooLarge,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var evt v1.PurchaseEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	return &evt, len(bodyBytes), nil
}

// applyDefaults stamps the server-side fields of an accepted event: an ID when
// the client sent none, the receive clock, a fallback occurrence time, and the
// derived error flag.
func applyDefaults(evt *v1.PurchaseEvent) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}

	evt.ReceivedAt = time.Now().UTC()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = evt.ReceivedAt
	}

	if evt.Error != nil || evt.EventType == v1.EventError {
		evt.HasError = true
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
