package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type tokenValidator interface {
	Validate(token string) error
}

type Server struct {
	auth     tokenValidator
	hub      *Hub
	upgrader *websocket.Upgrader
	logger   *zap.Logger
}

func NewServer(auth tokenValidator, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		auth: auth,
		hub:  hub,
		// The default origin check only accepts same-host pages.
		upgrader: &websocket.Upgrader{},
		logger:   logger.Named("ws"),
	}
}

// HandleConnections upgrades an authenticated request and streams events
// until either side goes away.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("token")
	if err != nil || s.auth.Validate(cookie.Value) != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("error upgrading to websocket", zap.Error(err))
		return
	}

	if err := NewConnection(s.hub, conn).Handle(r.Context()); err != nil {
		s.logger.Debug("websocket closed", zap.Error(err))
	}
}
