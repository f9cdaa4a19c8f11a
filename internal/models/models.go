package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
)

const (
	// AIContactID is reserved for the synthetic AI contact.
	AIContactID = "gemini-ai"
	// SelfID is the sender ID of messages written by the local user.
	SelfID = "me"
)

// ValidationError is returned when user input fails form validation.
// Message is shown to the user as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Profile is the locally authenticated user.
type Profile struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceAway    PresenceStatus = "away"
)

// Contact is a directory entry, real or synthetic.
type Contact struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	AvatarURL   string         `json:"avatarUrl"`
	Status      PresenceStatus `json:"status"`
	LastMessage string         `json:"lastMessage,omitempty"`
	LastActive  int64          `json:"lastActive,omitempty"` // Unix milliseconds
}

type ServerEventType string

const (
	ServerEventMessage  ServerEventType = "message"
	ServerEventStatus   ServerEventType = "status"
	ServerEventPresence ServerEventType = "presence"
	ServerEventContact  ServerEventType = "contact"
	ServerEventTyping   ServerEventType = "typing"
	ServerEventSpeaking ServerEventType = "speaking"
	ServerEventAudio    ServerEventType = "audio"
	ServerEventProfile  ServerEventType = "profile"
	ServerEventLogout   ServerEventType = "logout"
	ServerEventPong     ServerEventType = "pong"
)

// ServerEvent is pushed to every open browser tab.
type ServerEvent struct {
	Type      ServerEventType `json:"type"`
	ContactID string          `json:"contactId,omitempty"`
	Message   *Message        `json:"message,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Status    DeliveryStatus  `json:"status,omitempty"`
	Presence  PresenceStatus  `json:"presence,omitempty"`
	Contact   *Contact        `json:"contact,omitempty"`
	Profile   *Profile        `json:"profile,omitempty"`
	Active    bool            `json:"active,omitempty"`
	AudioURL  string          `json:"audioUrl,omitempty"`
}

type ClientMessageType string

const (
	ClientMessagePing ClientMessageType = "ping"
)

// ClientMessage is read from the browser event stream.
type ClientMessage struct {
	Type ClientMessageType `json:"type"`
}

// APIResponse is the generic JSON reply of the HTTP API.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}
