package chat

import (
	"fmt"

	"connectifyr/internal/models"
)

// History is the ordered message log of one conversation. It is not safe for
// concurrent use; the owner serialises access.
type History struct {
	ContactID string
	messages  []models.Message
	index     map[string]int
}

func NewHistory(contactID string, messages []models.Message) *History {
	h := &History{
		ContactID: contactID,
		index:     make(map[string]int, len(messages)),
	}
	for _, m := range messages {
		if _, dup := h.index[m.ID]; dup {
			continue
		}
		h.index[m.ID] = len(h.messages)
		h.messages = append(h.messages, m)
	}
	return h
}

// Append adds message at the end of the log. Message IDs must be unique.
func (h *History) Append(message models.Message) error {
	if _, dup := h.index[message.ID]; dup {
		return fmt.Errorf("message %s already in history of %s", message.ID, h.ContactID)
	}
	h.index[message.ID] = len(h.messages)
	h.messages = append(h.messages, message)
	return nil
}

// Last returns up to count most recent messages, oldest first.
func (h *History) Last(count int) []models.Message {
	if count <= 0 {
		return []models.Message{}
	}
	if count > len(h.messages) {
		count = len(h.messages)
	}
	result := make([]models.Message, count)
	copy(result, h.messages[len(h.messages)-count:])
	return result
}

// MarkRead moves the message to read. It reports whether anything changed.
func (h *History) MarkRead(id string) (bool, error) {
	i, ok := h.index[id]
	if !ok {
		return false, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	return h.messages[i].MarkRead(), nil
}

func (h *History) Len() int {
	return len(h.messages)
}

func (h *History) All() []models.Message {
	return h.Last(len(h.messages))
}

// Book holds the histories of every contact.
type Book struct {
	histories map[string]*History
}

func NewBook(chats map[string][]models.Message) *Book {
	b := &Book{}
	b.Load(chats)
	return b
}

// History returns the history for contactID, creating an empty one.
func (b *Book) History(contactID string) *History {
	h, ok := b.histories[contactID]
	if !ok {
		h = NewHistory(contactID, nil)
		b.histories[contactID] = h
	}
	return h
}

// Peek returns the history without creating it.
func (b *Book) Peek(contactID string) (*History, bool) {
	h, ok := b.histories[contactID]
	return h, ok
}

// Snapshot copies every non-empty history, ready to be persisted.
func (b *Book) Snapshot() map[string][]models.Message {
	out := make(map[string][]models.Message, len(b.histories))
	for id, h := range b.histories {
		if h.Len() == 0 {
			continue
		}
		out[id] = h.All()
	}
	return out
}

func (b *Book) Load(chats map[string][]models.Message) {
	b.histories = make(map[string]*History, len(chats))
	for id, messages := range chats {
		b.histories[id] = NewHistory(id, messages)
	}
}

func (b *Book) Reset() {
	b.histories = make(map[string]*History)
}
