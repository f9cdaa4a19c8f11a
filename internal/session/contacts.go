package session

import (
	"errors"
	"fmt"

	"connectifyr/internal/content"
	"connectifyr/internal/models"

	"go.uber.org/zap"
)

// Contacts lists the directory, filtered by query when it is not empty.
func (s *Session) Contacts(query string) ([]models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	return s.directory.Filter(query), nil
}

// AddContact adds an offline contact that comes online once the simulated
// friend request is accepted.
func (s *Session) AddContact(name, email string) (models.Contact, error) {
	name = content.Plain(name)
	email = content.NormalizeEmail(email)
	if err := content.ValidateContact(name, email); err != nil {
		return models.Contact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return models.Contact{}, err
	}

	contact, err := s.directory.Add(name, email, s.nowMillis())
	if err != nil {
		return models.Contact{}, err
	}
	if err := s.store.SaveContacts(s.directory.List()); err != nil {
		return models.Contact{}, fmt.Errorf("failed to save contacts: %w", err)
	}

	s.publisher.Publish(models.ServerEvent{Type: models.ServerEventContact, ContactID: contact.ID, Contact: &contact})

	s.scheduler.After("accept:"+contact.ID, s.config.AcceptDelay, func() {
		s.acceptContact(contact.ID)
	})

	return contact, nil
}

func (s *Session) acceptContact(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.directory.SetStatus(id, models.PresenceOnline)
	if errors.Is(err, models.ErrNotFound) || !changed {
		return
	}
	if err := s.store.SaveContacts(s.directory.List()); err != nil {
		s.logger.Error("failed to save contacts", zap.Error(err))
	}
	s.publisher.Publish(models.ServerEvent{Type: models.ServerEventPresence, ContactID: id, Presence: models.PresenceOnline})
}
