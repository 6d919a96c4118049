package ingestion

import (
	"github.com/gin-gonic/gin"

	"github.com/cartwatch-lab/cartwatch/internal/ledger"
)

type Service struct {
	ledger           *ledger.Ledger
	maxBodySizeBytes int
}

func NewService(ledg *ledger.Ledger, maxBodySizeMB int) *Service {
	if ledg == nil {
		panic("ingestion: ledger must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		ledger:           ledg,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	// Canonical ingestion endpoint.
	r.POST("/v1/events", s.IngestHandler)

	// Legacy path used by the checkout frontends.
	r.POST("/event", s.IngestHandler)
}
