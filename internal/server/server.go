package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cartwatch-lab/cartwatch/internal/ledger"
)

type Server struct {
	Engine *gin.Engine
	Addr   string
	ledger *ledger.Ledger
}

// New builds the HTTP front door: CORS for the browser checkout clients and a
// health endpoint reporting the live cart count.
func New(addr string, ledg *ledger.Ledger, mode string, allowedOrigins []string) *Server {
	// Set Gin mode based on configuration
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(cors.New(corsConfig(allowedOrigins)))

	s := &Server{
		Engine: r,
		Addr:   addr,
		ledger: ledg,
	}

	r.GET("/health", s.healthHandler)

	return s
}

// corsConfig maps the configured origin list onto the middleware config.
// A lone "*" means allow-all, which the middleware rejects when combined
// with credentials, so credentials are only enabled for explicit origins.
func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}

	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}

	cfg.AllowOrigins = allowedOrigins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) healthHandler(c *gin.Context) {
	carts := 0
	if s.ledger != nil {
		carts = s.ledger.Len()
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"carts":  carts,
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
