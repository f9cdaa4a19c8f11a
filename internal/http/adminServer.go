package http

import (
	"context"
	"net/http"
	"sync"

	"connectifyr/internal/api"
	"connectifyr/internal/session"
	"connectifyr/internal/ws"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type AdminServer struct {
	server *http.Server
	logger *zap.Logger
	wg     sync.WaitGroup
}

type AdminConfig struct {
	Addr     string
	User     string
	Password string
}

func NewAdminServer(config AdminConfig, sess *session.Session, hub *ws.Hub, logger *zap.Logger) *AdminServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	adminHandler := api.NewAdminHandler(sess, hub, logger)

	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return api.RequireBasicAuth(config.User, config.Password, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/contacts", guard(adminHandler.AddContactHandler))
	mux.Handle("GET /metrics", guard(promhttp.Handler().ServeHTTP))
	mux.HandleFunc("GET /healthz", adminHandler.HealthHandler)

	addr := config.Addr
	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.Named("admin-server"),
	}
}

func (s *AdminServer) Start() error {
	s.logger.Info("admin API started", zap.String("addr", s.server.Addr))
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
