package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"connectifyr/internal/auth"
	"connectifyr/internal/media"
	"connectifyr/internal/models"
	"connectifyr/internal/push"
	"connectifyr/internal/session"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

const (
	maxUploadSize = media.MaxInlineSize + 1<<20
	maxFormMemory = 8 << 20
)

type API struct {
	auth    *auth.AuthService
	session *session.Session
	library *media.Library
	push    *push.Service
	logger  *zap.Logger
}

func New(authService *auth.AuthService, sess *session.Session, library *media.Library, pushService *push.Service, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		auth:    authService,
		session: sess,
		library: library,
		push:    pushService,
		logger:  logger.Named("api"),
	}
}

type LoginRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	AgreedToTerms bool   `json:"agreedToTerms"`
	Remember      bool   `json:"remember"`
}

type LoginResponse struct {
	Success     bool            `json:"success"`
	Profile     *models.Profile `json:"profile,omitempty"`
	TokenExpiry int64           `json:"tokenExpiry,omitempty"`
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	// The login page posts a plain form; scripts send JSON.
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Email = r.FormValue("email")
		req.Name = r.FormValue("name")
		req.AgreedToTerms = formBool(r.FormValue("agreedToTerms"))
		req.Remember = formBool(r.FormValue("remember"))
	}

	profile, err := a.session.Login(req.Name, req.Email, req.AgreedToTerms, req.Remember)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	token, expiresAt, err := a.auth.Issue(req.Remember)
	if err != nil {
		writeError(w, a.logger, fmt.Errorf("failed to issue token: %w", err))
		return
	}

	cookie := &http.Cookie{
		Name:     "token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	// Without remember the cookie ends with the browser session.
	if req.Remember {
		cookie.Expires = expiresAt
	}
	http.SetCookie(w, cookie)

	writeJSON(w, a.logger, http.StatusOK, LoginResponse{
		Success:     true,
		Profile:     &profile,
		TokenExpiry: expiresAt.Unix(),
	})
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "on"
	}
	return b
}

// LogoffHandler wipes all local data. The cookie is cleared regardless of
// whether the token was still valid.
func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if a.auth.Validate(getToken(r)) == nil {
		// Revoked first so no tab can reconnect between the wipe and the revoke.
		if err := a.auth.RevokeAll(); err != nil {
			a.logger.Warn("failed to revoke tokens", zap.Error(err))
		}
		if err := a.session.Logout(); err != nil {
			writeError(w, a.logger, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
	writeJSON(w, a.logger, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := a.session.Profile()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, a.logger, http.StatusOK, profile)
}

// AvatarHandler accepts either {"avatarUrl": ...} or an uploaded image.
func (a *API) AvatarHandler(w http.ResponseWriter, r *http.Request) {
	var avatarURL string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Invalid upload", http.StatusBadRequest)
			return
		}
		defer func() { _ = file.Close() }()

		ref, kind, err := a.library.Store(file, header.Filename, header.Header.Get("Content-Type"), "")
		if err != nil {
			writeError(w, a.logger, err)
			return
		}
		if kind != models.KindImage {
			writeError(w, a.logger, &models.ValidationError{Field: "file", Message: "Avatar must be an image!"})
			return
		}
		avatarURL = ref.URL
	} else {
		var req struct {
			AvatarURL string `json:"avatarUrl"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		avatarURL = req.AvatarURL
	}

	profile, err := a.session.ChangeAvatar(avatarURL)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, a.logger, http.StatusOK, profile)
}

func (a *API) ContactsHandler(w http.ResponseWriter, r *http.Request) {
	contacts, err := a.session.Contacts(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, a.logger, http.StatusOK, contacts)
}

type AddContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *API) AddContactHandler(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	contact, err := a.session.AddContact(req.Name, req.Email)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, a.logger, http.StatusCreated, contact)
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := a.session.Messages(r.PathValue("id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, a.logger, http.StatusOK, messages)
}

// SendMessageHandler takes {"text": ...} as JSON or a multipart upload with
// a "file" part. Recordings are sent with kind=voice and their duration in
// seconds.
func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	contactID := r.PathValue("id")

	var content models.Content
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		c, err := a.readUpload(w, r, contactID)
		if err != nil {
			writeError(w, a.logger, err)
			return
		}
		content = c
	} else {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		content = models.Text{Text: req.Text}
	}

	msg, err := a.session.Send(contactID, content)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, a.logger, http.StatusCreated, msg)
}

func (a *API) readUpload(w http.ResponseWriter, r *http.Request, contactID string) (models.Content, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &models.ValidationError{Field: "file", Message: "File is too large!"}
		}
		return nil, &models.ValidationError{Field: "file", Message: "Invalid upload!"}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &models.ValidationError{Field: "file", Message: "File is required!"}
	}
	defer func() { _ = file.Close() }()

	declared := header.Header.Get("Content-Type")

	if r.FormValue("kind") == string(models.KindVoice) {
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read recording: %w", err)
		}
		mimeType := media.VoiceMimeType
		if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "audio/") {
			mimeType = mt
		}
		duration, _ := strconv.Atoi(r.FormValue("duration"))
		return models.Voice{
			Media: models.MediaRef{
				URL:      media.DataURL(mimeType, data),
				MimeType: mimeType,
				Name:     media.VoiceName,
			},
			DurationSec: max(duration, 0),
		}, nil
	}

	ref, kind, err := a.library.Store(file, header.Filename, declared, contactID)
	if err != nil {
		return nil, err
	}
	caption := r.FormValue("caption")
	switch kind {
	case models.KindImage:
		return models.Image{Media: ref, Caption: caption}, nil
	case models.KindVideo:
		return models.Video{Media: ref, Caption: caption}, nil
	default:
		return models.File{Media: ref}, nil
	}
}

// MediaHandler serves stored uploads. Media ids are unguessable so the
// handler does not require the session cookie, which lets avatars render on
// the login page.
func (a *API) MediaHandler(w http.ResponseWriter, r *http.Request) {
	rc, meta, err := a.library.Open(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, a.logger, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	if meta.Name != "" && !strings.HasPrefix(meta.MimeType, "image/") && !strings.HasPrefix(meta.MimeType, "video/") {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.Name}))
	}
	w.Header().Set("Last-Modified", time.Unix(meta.CreatedAt, 0).UTC().Format(http.TimeFormat))

	if _, err := io.Copy(w, rc); err != nil {
		a.logger.Debug("media copy interrupted", zap.Error(err))
	}
}

type PushKeyResponse struct {
	Enabled   bool   `json:"enabled"`
	PublicKey string `json:"publicKey,omitempty"`
}

func (a *API) PushKeyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.logger, http.StatusOK, PushKeyResponse{
		Enabled:   a.push.Enabled(),
		PublicKey: a.push.PublicKey(),
	})
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var sub webpush.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := a.push.Subscribe(sub); err != nil {
		if errors.Is(err, push.ErrDisabled) {
			writeError(w, a.logger, err)
			return
		}
		writeError(w, a.logger, &models.ValidationError{Field: "subscription", Message: err.Error()})
		return
	}
	writeJSON(w, a.logger, http.StatusCreated, models.APIResponse{Success: true})
}
