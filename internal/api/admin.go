package api

import (
	"encoding/json"
	"net/http"

	"connectifyr/internal/models"
	"connectifyr/internal/session"

	"go.uber.org/zap"
)

type clientCounter interface {
	Clients() int
}

type AdminHandler struct {
	session *session.Session
	hub     clientCounter
	logger  *zap.Logger
}

func NewAdminHandler(sess *session.Session, hub clientCounter, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{session: sess, hub: hub, logger: logger.Named("admin")}
}

type AddContactResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Contact *models.Contact `json:"contact,omitempty"`
}

// AddContactHandler adds a contact on behalf of the logged in user, the same
// way the add-contact form does.
func (h *AdminHandler) AddContactHandler(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	contact, err := h.session.AddContact(req.Name, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("contact added via admin API", zap.String("contact_id", contact.ID))
	writeJSON(w, h.logger, http.StatusOK, AddContactResponse{
		Success: true,
		Contact: &contact,
	})
}

type HealthResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	Clients       int    `json:"clients"`
	PendingTasks  int    `json:"pendingTasks"`
}

func (h *AdminHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{
		Status:        "ok",
		Authenticated: h.session.Authenticated(),
		Clients:       h.hub.Clients(),
		PendingTasks:  len(h.session.PendingTasks()),
	})
}
