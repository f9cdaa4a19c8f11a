package session

import (
	"context"
	"errors"
	"unicode/utf8"

	"connectifyr/internal/assistant"
	"connectifyr/internal/content"
	"connectifyr/internal/directory"
	"connectifyr/internal/metrics"
	"connectifyr/internal/models"
	"connectifyr/internal/push"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEmptyMessage = &models.ValidationError{Field: "message", Message: "Message is empty!"}

const (
	pushPreviewLen = 120
	speakingTask   = "speaking:"
)

// Messages returns the history with a contact, oldest first.
func (s *Session) Messages(contactID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	if _, err := s.directory.Get(contactID); err != nil {
		return nil, err
	}
	h, ok := s.book.Peek(contactID)
	if !ok {
		return []models.Message{}, nil
	}
	return h.All(), nil
}

// Send appends an outgoing message. It is marked read after the receipt
// delay; messages to the AI contact also start a reply.
func (s *Session) Send(contactID string, c models.Content) (models.Message, error) {
	if models.IsEmpty(c) {
		return models.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return models.Message{}, err
	}
	if _, err := s.directory.Get(contactID); err != nil {
		return models.Message{}, err
	}

	history := s.book.History(contactID)
	prior := history.All()

	msg := models.Message{
		ID:        uuid.NewString(),
		SenderID:  models.SelfID,
		Timestamp: s.nowMillis(),
		Status:    models.DeliverySent,
		Content:   c,
	}
	if err := history.Append(msg); err != nil {
		return models.Message{}, err
	}
	s.directory.Touch(contactID, msg.Preview(), msg.Timestamp)
	if err := s.persistLocked(); err != nil {
		return models.Message{}, err
	}

	metrics.MessagesSent.WithLabelValues(string(msg.Type())).Inc()
	s.publisher.Publish(models.ServerEvent{Type: models.ServerEventMessage, ContactID: contactID, Message: &msg})

	s.scheduler.After("read:"+msg.ID, s.config.ReadReceiptDelay, func() {
		s.markRead(contactID, msg.ID)
	})

	if contactID == models.AIContactID && s.assistant != nil {
		ctx, epoch := s.epochCtx, s.epoch
		s.wg.Go(func() {
			s.respond(ctx, epoch, prior, msg)
		})
	}

	return msg, nil
}

func (s *Session) markRead(contactID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.book.Peek(contactID)
	if !ok {
		return
	}
	changed, err := h.MarkRead(messageID)
	if err != nil || !changed {
		return
	}
	if err := s.persistChatsLocked(); err != nil {
		s.logger.Error("failed to save read receipt", zap.Error(err))
	}
	s.publisher.Publish(models.ServerEvent{
		Type:      models.ServerEventStatus,
		ContactID: contactID,
		MessageID: messageID,
		Status:    models.DeliveryRead,
	})
}

// respond runs the AI reply for msg: typing indicator, text reply, then
// speech. A failed reply leaves the history untouched.
func (s *Session) respond(ctx context.Context, epoch uint64, prior []models.Message, msg models.Message) {
	s.publishActivity(models.ServerEventTyping, true)

	text, err := s.assistant.Reply(ctx, prior, msg)
	s.publishActivity(models.ServerEventTyping, false)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("AI reply failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
		return
	}

	reply, ok := s.appendReply(epoch, text)
	if !ok {
		return
	}

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, push.Notification{
			Title:     directory.AIContactName,
			Body:      truncate(text, pushPreviewLen),
			ContactID: models.AIContactID,
			Icon:      directory.AIContactAvatar,
		})
		if err != nil {
			s.logger.Warn("push notification failed", zap.Error(err))
		}
	}

	s.publishActivity(models.ServerEventSpeaking, true)
	speech, err := s.assistant.Speak(ctx, text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("speech synthesis failed", zap.String("message_id", reply.ID), zap.Error(err))
		}
		s.publishActivity(models.ServerEventSpeaking, false)
		return
	}

	s.playReply(epoch, reply.ID, speech)
}

// playReply hands the clip to the browser. The speaking indicator clears
// after the clip's duration; that task is pending before the audio event
// goes out.
func (s *Session) playReply(epoch uint64, messageID string, speech assistant.Speech) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch {
		s.publishActivity(models.ServerEventSpeaking, false)
		return
	}

	s.scheduler.After(speakingTask+messageID, speech.Duration, func() {
		s.publishActivity(models.ServerEventSpeaking, false)
	})
	s.publisher.Publish(models.ServerEvent{
		Type:      models.ServerEventAudio,
		ContactID: models.AIContactID,
		MessageID: messageID,
		AudioURL:  speech.DataURL,
	})
}

func (s *Session) appendReply(epoch uint64, text string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.epoch != epoch || !s.authenticated {
		return models.Message{}, false
	}

	reply := models.Message{
		ID:        uuid.NewString(),
		SenderID:  models.AIContactID,
		Timestamp: s.nowMillis(),
		Status:    models.DeliveryRead,
		Content:   models.Text{Text: text},
		HTML:      content.RenderMarkdown(text),
	}
	if err := s.book.History(models.AIContactID).Append(reply); err != nil {
		s.logger.Error("failed to append AI reply", zap.Error(err))
		return models.Message{}, false
	}
	s.directory.Touch(models.AIContactID, reply.Preview(), reply.Timestamp)
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to save AI reply", zap.Error(err))
	}

	s.publisher.Publish(models.ServerEvent{Type: models.ServerEventMessage, ContactID: models.AIContactID, Message: &reply})
	return reply, true
}

func (s *Session) publishActivity(t models.ServerEventType, active bool) {
	s.publisher.Publish(models.ServerEvent{Type: t, ContactID: models.AIContactID, Active: active})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
