package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/offmarket/offmarket/internal/usecase"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Alerts  *usecase.AlertUsecase
	Catalog *usecase.CatalogUsecase
	Trigger EvaluationTrigger
	Hub     *Hub
	// Limiter guards the on-demand check. Nil disables rate limiting.
	Limiter RateLimiter
	// Health reports backing store reachability. Nil always reports ok.
	Health func(ctx context.Context) error
	Logger  *zap.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(recovery(deps.Logger), requestLogger(deps.Logger), requestMetrics())

	h := NewHandlers(deps.Alerts, deps.Catalog, deps.Trigger, deps.Logger)

	router.GET("/health", health(deps.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.Hub != nil {
		router.GET("/ws/alerts", deps.Hub.Serve)
	}

	api := router.Group("/api")
	{
		api.POST("/alerts", h.CreateAlert)
		api.GET("/alerts", h.ListAlerts)
		api.PATCH("/alerts/:id", h.ToggleAlert)
		api.DELETE("/alerts/:id", h.DeleteAlert)

		check := []gin.HandlerFunc{h.CheckAlerts}
		if deps.Limiter != nil {
			check = append([]gin.HandlerFunc{rateLimit(deps.Limiter, deps.Logger)}, check...)
		}
		api.POST("/alerts/check", check...)
		api.GET("/alerts/check/status", h.CheckStatus)

		api.GET("/stores", h.ListStores)
		api.GET("/products", h.ListProducts)
	}

	return router
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
