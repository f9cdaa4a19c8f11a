package models

import (
	"encoding/json"
	"strings"
)

type DeliveryStatus string

const (
	DeliverySent DeliveryStatus = "sent"
	DeliveryRead DeliveryStatus = "read"
)

// ContentKind tags the variant held by a message.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
	KindFile  ContentKind = "file"
	KindVoice ContentKind = "voice"
)

// MessageType is the coarse classification shown by the chat window.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeMedia MessageType = "media"
	MessageTypeVoice MessageType = "voice"
)

// MediaRef points at message media. URL is either an API path or a data URL.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name,omitempty"`
}

// Content is one of Text, Image, Video, File or Voice.
type Content interface {
	Kind() ContentKind
	isContent()
}

type Text struct {
	Text string
}

type Image struct {
	Media   MediaRef
	Caption string
}

type Video struct {
	Media   MediaRef
	Caption string
}

type File struct {
	Media MediaRef
}

type Voice struct {
	Media       MediaRef
	DurationSec int
}

func (Text) Kind() ContentKind  { return KindText }
func (Image) Kind() ContentKind { return KindImage }
func (Video) Kind() ContentKind { return KindVideo }
func (File) Kind() ContentKind  { return KindFile }
func (Voice) Kind() ContentKind { return KindVoice }

func (Text) isContent()  {}
func (Image) isContent() {}
func (Video) isContent() {}
func (File) isContent()  {}
func (Voice) isContent() {}

// Message is a single chat history entry.
type Message struct {
	ID        string
	SenderID  string
	Timestamp int64 // Unix milliseconds
	Status    DeliveryStatus
	Content   Content
	// HTML is the rendered form of AI replies. Empty for user messages.
	HTML      string
}

// Type classifies the message. Anything carrying media is never text.
func (m Message) Type() MessageType {
	switch m.Content.(type) {
	case Text:
		return MessageTypeText
	case Voice:
		return MessageTypeVoice
	default:
		return MessageTypeMedia
	}
}

// Text returns the message text, or the caption for captioned media.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case Text:
		return c.Text
	case Image:
		return c.Caption
	case Video:
		return c.Caption
	}
	return ""
}

// Media returns the attached media, if any.
func (m Message) Media() (MediaRef, bool) {
	switch c := m.Content.(type) {
	case Image:
		return c.Media, true
	case Video:
		return c.Media, true
	case File:
		return c.Media, true
	case Voice:
		return c.Media, true
	}
	return MediaRef{}, false
}

// FromMe reports whether the local user sent the message.
func (m Message) FromMe() bool {
	return m.SenderID == SelfID
}

// MarkRead moves the message from sent to read. It reports whether the
// status changed; read messages never go back to sent.
func (m *Message) MarkRead() bool {
	if m.Status == DeliveryRead {
		return false
	}
	m.Status = DeliveryRead
	return true
}

// Preview is the sidebar line for the message.
func (m Message) Preview() string {
	if m.Content == nil {
		return ""
	}
	if m.Content.Kind() != KindText {
		return "Shared " + string(m.Content.Kind())
	}
	return m.Text()
}

// IsEmpty reports whether content carries neither text nor media.
func IsEmpty(c Content) bool {
	switch v := c.(type) {
	case nil:
		return true
	case Text:
		return strings.TrimSpace(v.Text) == ""
	case Image:
		return v.Media.URL == ""
	case Video:
		return v.Media.URL == ""
	case File:
		return v.Media.URL == ""
	case Voice:
		return v.Media.URL == ""
	}
	return true
}

type messageJSON struct {
	ID          string         `json:"id"`
	SenderID    string         `json:"senderId"`
	Timestamp   int64          `json:"timestamp"`
	Status      DeliveryStatus `json:"status"`
	Type        MessageType    `json:"type"`
	Kind        ContentKind    `json:"kind"`
	Text        string         `json:"text,omitempty"`
	HTML        string         `json:"html,omitempty"`
	Media       *MediaRef      `json:"media,omitempty"`
	DurationSec int            `json:"durationSec,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
		Status:    m.Status,
		Type:      m.Type(),
		Text:      m.Text(),
		HTML:      m.HTML,
	}
	if m.Content != nil {
		out.Kind = m.Content.Kind()
	}
	if media, ok := m.Media(); ok {
		out.Media = &media
	}
	if v, ok := m.Content.(Voice); ok {
		out.DurationSec = v.DurationSec
	}
	return json.Marshal(out)
}
