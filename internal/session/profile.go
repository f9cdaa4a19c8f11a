package session

import (
	"fmt"
	"strings"

	"connectifyr/internal/content"
	"connectifyr/internal/directory"
	"connectifyr/internal/media"
	"connectifyr/internal/models"
)

// Login authenticates the local user. Nothing is checked beyond the form.
// Logging in again with the same email resumes the session as is; any other
// email is refused until the current user logs out.
func (s *Session) Login(name, email string, agreedToTerms, remember bool) (models.Profile, error) {
	name = content.Plain(name)
	email = content.NormalizeEmail(email)
	if err := content.ValidateLogin(name, email, agreedToTerms); err != nil {
		return models.Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Profile{}, ErrClosed
	}
	if s.authenticated {
		return s.resumeLocked(email, remember)
	}

	profile := models.Profile{
		Email:     email,
		Name:      name,
		AvatarURL: directory.DefaultAvatar(name),
	}

	if err := s.store.SaveProfile(profile); err != nil {
		return models.Profile{}, fmt.Errorf("failed to save profile: %w", err)
	}
	if err := s.store.SaveAuth(true, remember); err != nil {
		return models.Profile{}, fmt.Errorf("failed to save auth: %w", err)
	}
	if err := s.persistLocked(); err != nil {
		return models.Profile{}, err
	}

	s.authenticated = true
	s.remember = remember
	s.profile = &profile
	s.logger.Info("user logged in")

	s.publisher.Publish(models.ServerEvent{Type: models.ServerEventProfile, Profile: &profile})
	return profile, nil
}

func (s *Session) resumeLocked(email string, remember bool) (models.Profile, error) {
	if s.profile == nil || s.profile.Email != email {
		s.logger.Warn("login refused while another user is logged in")
		return models.Profile{}, ErrAnotherUser
	}
	if remember != s.remember {
		if err := s.store.SaveAuth(true, remember); err != nil {
			return models.Profile{}, fmt.Errorf("failed to save auth: %w", err)
		}
		s.remember = remember
	}
	return *s.profile, nil
}

// Logout wipes all local data and cancels every pending transition.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.resetLocked(); err != nil {
		return err
	}
	s.logger.Info("user logged out")
	s.publisher.Publish(models.ServerEvent{Type: models.ServerEventLogout})
	return nil
}

func (s *Session) Profile() (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return models.Profile{}, err
	}
	return *s.profile, nil
}

// ChangeAvatar replaces the profile picture with url, which must be a web,
// data or stored media URL.
func (s *Session) ChangeAvatar(url string) (models.Profile, error) {
	url = strings.TrimSpace(url)
	if !validAvatarURL(url) {
		return models.Profile{}, &models.ValidationError{Field: "avatarUrl", Message: "Invalid avatar URL!"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return models.Profile{}, err
	}

	profile := *s.profile
	profile.AvatarURL = url
	if err := s.store.SaveProfile(profile); err != nil {
		return models.Profile{}, fmt.Errorf("failed to save profile: %w", err)
	}
	s.profile = &profile

	s.publisher.Publish(models.ServerEvent{Type: models.ServerEventProfile, Profile: &profile})
	return profile, nil
}

func validAvatarURL(url string) bool {
	for _, prefix := range []string{"https://", "http://", "data:image/", media.URLPrefix} {
		if strings.HasPrefix(url, prefix) && len(url) > len(prefix) {
			return true
		}
	}
	return false
}
