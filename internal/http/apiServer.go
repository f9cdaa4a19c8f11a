package http

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"connectifyr/internal/api"
	"connectifyr/internal/auth"
	"connectifyr/internal/media"
	"connectifyr/internal/push"
	"connectifyr/internal/session"
	"connectifyr/internal/ws"

	"go.uber.org/zap"
)

type APIServer struct {
	server *http.Server
	logger *zap.Logger
	wg     sync.WaitGroup
}

// APIDeps are the components served by the public API.
type APIDeps struct {
	Auth    *auth.AuthService
	Session *session.Session
	Hub     *ws.Hub
	Library *media.Library
	Push    *push.Service
	Assets  fs.FS
}

func NewAPIServer(deps APIDeps, addr string, logger *zap.Logger) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := ws.NewServer(deps.Auth, deps.Hub, logger)
	apiHandlers := api.New(deps.Auth, deps.Session, deps.Library, deps.Push, logger)

	mux := http.NewServeMux()

	// Serve static files with Auth check
	mux.HandleFunc("/", NewFileServerHandler(deps.Auth, deps.Assets))

	mux.HandleFunc("POST /api/login", api.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("POST /api/me/avatar", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.AvatarHandler)))
	mux.HandleFunc("GET /api/contacts", apiHandlers.RequireAuth(apiHandlers.ContactsHandler))
	mux.HandleFunc("POST /api/contacts", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.AddContactHandler)))
	mux.HandleFunc("GET /api/contacts/{id}/messages", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("POST /api/contacts/{id}/messages", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.SendMessageHandler)))
	mux.HandleFunc("GET /api/media/{id}", apiHandlers.MediaHandler)
	mux.HandleFunc("GET /api/push/key", apiHandlers.PushKeyHandler)
	mux.HandleFunc("POST /api/push/subscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler)))

	// WebSocket endpoint
	mux.HandleFunc("/api/events", server.HandleConnections)

	if addr == "" {
		addr = "localhost:8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("api-server"),
	}
}

func (s *APIServer) Start() error {
	s.logger.Info("server started", zap.String("addr", s.server.Addr))
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
