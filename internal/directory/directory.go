package directory

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"connectifyr/internal/models"

	"github.com/google/uuid"
)

var ErrDuplicateEmail = errors.New("contact with this email already exists")

const (
	AIContactEmail   = "ai@connectifyr.com"
	AIContactName    = "Gemini-chan"
	AIContactAvatar  = "https://api.dicebear.com/7.x/adventurer/svg?seed=Gemini&backgroundColor=b6e3f4"
	AIContactGreeter = "Yaho! Ready to chat?"

	NewContactPreview = "Newly added nakama!"
)

// AIContact returns the synthetic contact backed by the AI model.
func AIContact() models.Contact {
	return models.Contact{
		ID:          models.AIContactID,
		Email:       AIContactEmail,
		Name:        AIContactName,
		AvatarURL:   AIContactAvatar,
		Status:      models.PresenceOnline,
		LastMessage: AIContactGreeter,
	}
}

// DefaultAvatar is the generated avatar for users and contacts without one.
func DefaultAvatar(seed string) string {
	return "https://api.dicebear.com/7.x/adventurer/svg?seed=" + url.QueryEscape(seed) + "&backgroundColor=ffd5dc"
}

// Directory is the ordered contact list. The AI contact is always present.
// It is not safe for concurrent use.
type Directory struct {
	contacts []models.Contact
}

// New restores a directory from stored contacts, prepending the AI contact
// when it is missing.
func New(stored []models.Contact) *Directory {
	d := &Directory{contacts: make([]models.Contact, 0, len(stored)+1)}
	hasAI := false
	for _, c := range stored {
		if c.ID == models.AIContactID {
			if hasAI {
				continue
			}
			hasAI = true
		}
		d.contacts = append(d.contacts, c)
	}
	if !hasAI {
		d.contacts = append([]models.Contact{AIContact()}, d.contacts...)
	}
	return d
}

// Add creates an offline contact. Emails are unique, compared case-insensitively.
func (d *Directory) Add(name, email string, now int64) (models.Contact, error) {
	for _, c := range d.contacts {
		if strings.EqualFold(c.Email, email) {
			return models.Contact{}, fmt.Errorf("%s: %w", email, ErrDuplicateEmail)
		}
	}

	contact := models.Contact{
		ID:          uuid.NewString(),
		Email:       email,
		Name:        name,
		AvatarURL:   DefaultAvatar(name),
		Status:      models.PresenceOffline,
		LastMessage: NewContactPreview,
		LastActive:  now,
	}
	d.contacts = append(d.contacts, contact)
	return contact, nil
}

func (d *Directory) Get(id string) (models.Contact, error) {
	for _, c := range d.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Contact{}, fmt.Errorf("contact %s: %w", id, models.ErrNotFound)
}

// List returns a copy of all contacts in insertion order.
func (d *Directory) List() []models.Contact {
	out := make([]models.Contact, len(d.contacts))
	copy(out, d.contacts)
	return out
}

// Filter returns contacts whose name or email contains query, ignoring case.
// An empty query matches everything.
func (d *Directory) Filter(query string) []models.Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return d.List()
	}
	out := []models.Contact{}
	for _, c := range d.contacts {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out
}

// SetStatus updates presence and reports whether it changed.
func (d *Directory) SetStatus(id string, status models.PresenceStatus) (bool, error) {
	for i := range d.contacts {
		if d.contacts[i].ID != id {
			continue
		}
		if d.contacts[i].Status == status {
			return false, nil
		}
		d.contacts[i].Status = status
		return true, nil
	}
	return false, fmt.Errorf("contact %s: %w", id, models.ErrNotFound)
}

// Touch records activity on the conversation with id.
func (d *Directory) Touch(id, preview string, at int64) {
	for i := range d.contacts {
		if d.contacts[i].ID == id {
			d.contacts[i].LastMessage = preview
			d.contacts[i].LastActive = at
			return
		}
	}
}

// Reset drops every contact except the AI contact.
func (d *Directory) Reset() {
	d.contacts = []models.Contact{AIContact()}
}
