package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/cartwatch-lab/cartwatch/internal/api/v1"
	httperr "github.com/cartwatch-lab/cartwatch/internal/core/errors"
	"github.com/cartwatch-lab/cartwatch/internal/ledger"
	"github.com/cartwatch-lab/cartwatch/internal/notify"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []v1.NotificationPayload
}

func (s *recordingSink) Deliver(_ context.Context, p v1.NotificationPayload) notify.DeliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return notify.DeliveryResult{Action: p.Action, Status: p.Status}
}

func (s *recordingSink) delivered() []v1.NotificationPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]v1.NotificationPayload(nil), s.payloads...)
}

type nopReporter struct{}

func (nopReporter) Report(notify.DeliveryResult) {}

func newRouter(t *testing.T, maxBodySizeMB int) (*gin.Engine, *ledger.Ledger, *recordingSink) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sink := &recordingSink{}
	ledg := ledger.New(sink, nopReporter{})
	svc := NewService(ledg, maxBodySizeMB)

	r := gin.New()
	svc.RegisterRoutes(r)
	return r, ledg, sink
}

func postEvent(r *gin.Engine, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestIngestHandler_Success(t *testing.T) {
	r, ledg, sink := newRouter(t, 1)

	body, _ := json.Marshal(map[string]any{
		"userId":      "user-1",
		"eventType":   "cart",
		"productId":   "prod-a",
		"productName": "Course A",
		"cartValue":   199.9,
	})

	resp := postEvent(r, "/v1/events", body)
	require.Equal(t, http.StatusOK, resp.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, true, result["success"])
	require.NotEmpty(t, result["eventId"], "server must stamp an event ID")
	require.Equal(t, "cold", result["status"])

	require.Equal(t, 1, ledg.Len())
	delivered := sink.delivered()
	require.Len(t, delivered, 1)
	require.Equal(t, "user-1_prod-a", delivered[0].CartID)
	require.InDelta(t, 199.9, delivered[0].CartValue, 1e-9)
}

func TestIngestHandler_LegacyPath(t *testing.T) {
	r, ledg, _ := newRouter(t, 1)

	body, _ := json.Marshal(map[string]any{"userId": "user-1", "eventType": "cart"})
	resp := postEvent(r, "/event", body)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, ledg.Len())
}

func TestIngestHandler_PurchaseEvictsCart(t *testing.T) {
	r, ledg, _ := newRouter(t, 1)

	cart, _ := json.Marshal(map[string]any{"userId": "user-1", "eventType": "cart", "productId": "prod-a"})
	purchase, _ := json.Marshal(map[string]any{"userId": "user-1", "eventType": "purchase", "productId": "prod-a"})

	require.Equal(t, http.StatusOK, postEvent(r, "/v1/events", cart).Code)
	require.Equal(t, 1, ledg.Len())

	resp := postEvent(r, "/v1/events", purchase)
	require.Equal(t, http.StatusOK, resp.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "completed", result["status"])
	require.Zero(t, ledg.Len())
}

func TestIngestHandler_MissingUserID(t *testing.T) {
	r, ledg, sink := newRouter(t, 1)

	body, _ := json.Marshal(map[string]any{"eventType": "cart"})
	resp := postEvent(r, "/v1/events", body)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpValidationError, errResp.ErrorType)

	require.Zero(t, ledg.Len(), "rejected events never reach the ledger")
	require.Empty(t, sink.delivered())
}

func TestIngestHandler_UnknownEventType(t *testing.T) {
	r, _, _ := newRouter(t, 1)

	body, _ := json.Marshal(map[string]any{"userId": "user-1", "eventType": "checkout_started"})
	resp := postEvent(r, "/v1/events", body)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpValidationError, errResp.ErrorType)
}

func TestIngestHandler_InvalidJSON(t *testing.T) {
	r, _, _ := newRouter(t, 1)

	resp := postEvent(r, "/v1/events", []byte("not json"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func TestIngestHandler_BodyTooLarge(t *testing.T) {
	r, _, _ := newRouter(t, 1)

	// Valid JSON, but over the 1MB cap.
	padding := bytes.Repeat([]byte("x"), 1024*1024+16)
	body, _ := json.Marshal(map[string]any{"userId": "user-1", "eventType": "cart", "campaign": string(padding)})

	resp := postEvent(r, "/v1/events", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpPayloadTooLarge, errResp.ErrorType)
}

func TestIngestHandler_ErrorDetailImpliesErrorFlag(t *testing.T) {
	r, ledg, _ := newRouter(t, 1)

	body, _ := json.Marshal(map[string]any{
		"userId":    "user-1",
		"productId": "prod-a",
		"eventType": "purchase",
		"error":     map[string]any{"code": "card_declined", "message": "card declined"},
	})

	resp := postEvent(r, "/v1/events", body)
	require.Equal(t, http.StatusOK, resp.Code)

	// The derived error flag blocks eviction even though it is a purchase.
	require.Equal(t, 1, ledg.Len())
	cart := ledg.Cart("user-1_prod-a")
	require.NotNil(t, cart)
	require.True(t, cart.HasErrors)
}
