package storage

import (
	"errors"
	"fmt"
	"time"

	"connectifyr/internal/models"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketLocal = []byte("local")
	bucketFiles = []byte("files")
)

// State is everything the app restores on start.
type State struct {
	Authenticated bool
	Remember      bool
	Profile       *models.Profile
	// Contacts is nil when nothing usable was stored.
	Contacts []models.Contact
	Chats    map[string][]models.Message
}

type BboltStorage struct {
	db     *bbolt.DB
	logger *zap.Logger
}

func NewBboltStorage(path string, logger *zap.Logger) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLocal); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &BboltStorage{db: db, logger: logger.Named("storage")}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// LoadState reads every fixed key. A missing or undecodable value falls back
// to its default and is left as is in the file.
func (s *BboltStorage) LoadState() State {
	state := State{Chats: make(map[string][]models.Message)}

	var auth DBAuth
	if s.load(&auth) {
		state.Authenticated = auth.Authenticated
		state.Remember = auth.Remember
	}

	var profile DBProfile
	if s.load(&profile) {
		state.Profile = &models.Profile{
			Email:     profile.Email,
			Name:      profile.Name,
			AvatarURL: profile.AvatarURL,
		}
	}

	var contacts DBContactList
	if s.load(&contacts) {
		state.Contacts = make([]models.Contact, 0, len(contacts.Contacts))
		for _, c := range contacts.Contacts {
			state.Contacts = append(state.Contacts, contactFromDB(c))
		}
	}

	var chats DBChatHistories
	if s.load(&chats) {
		for contactID, dbMessages := range chats.Chats {
			messages := make([]models.Message, 0, len(dbMessages))
			for _, m := range dbMessages {
				msg, err := messageFromDB(m)
				if err != nil {
					s.logger.Debug("dropping stored message", zap.String("contact_id", contactID), zap.Error(err))
					continue
				}
				messages = append(messages, msg)
			}
			state.Chats[contactID] = messages
		}
	}

	return state
}

func (s *BboltStorage) load(v Storeable) bool {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(bucketLocal).Get(v.Key()); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		s.logger.Debug("failed to read key", zap.ByteString("key", v.Key()), zap.Error(err))
		return false
	}
	if data == nil {
		return false
	}
	if err := v.UnmarshalBinary(data); err != nil {
		s.logger.Debug("discarding corrupt value", zap.ByteString("key", v.Key()), zap.Error(err))
		return false
	}
	return true
}

func (s *BboltStorage) save(v Storeable) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", v.Key(), err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLocal).Put(v.Key(), data)
	})
}

func (s *BboltStorage) SaveAuth(authenticated, remember bool) error {
	return s.save(&DBAuth{Authenticated: authenticated, Remember: remember})
}

func (s *BboltStorage) SaveProfile(profile models.Profile) error {
	return s.save(&DBProfile{
		Email:     profile.Email,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
	})
}

// SaveContacts replaces the stored contact list.
func (s *BboltStorage) SaveContacts(contacts []models.Contact) error {
	list := DBContactList{Contacts: make([]DBContact, 0, len(contacts))}
	for _, c := range contacts {
		list.Contacts = append(list.Contacts, contactToDB(c))
	}
	return s.save(&list)
}

// SaveChats replaces every stored chat history.
func (s *BboltStorage) SaveChats(chats map[string][]models.Message) error {
	histories := DBChatHistories{Chats: make(map[string][]DBMessage, len(chats))}
	for contactID, messages := range chats {
		dbMessages := make([]DBMessage, 0, len(messages))
		for _, m := range messages {
			dbMessages = append(dbMessages, messageToDB(m))
		}
		histories.Chats[contactID] = dbMessages
	}
	return s.save(&histories)
}

// Clear wipes every fixed key. Uploaded file metadata is kept.
func (s *BboltStorage) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketLocal); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketLocal)
		return err
	})
}

func (s *BboltStorage) SaveToken(hash string, expiresAt time.Time) error {
	return s.save(&DBToken{Hash: hash, ExpiresAt: expiresAt.Unix()})
}

// LoadToken returns the persisted remember-me token hash.
func (s *BboltStorage) LoadToken() (string, time.Time, error) {
	var token DBToken
	if !s.load(&token) || token.Hash == "" {
		return "", time.Time{}, models.ErrNotFound
	}
	return token.Hash, time.Unix(token.ExpiresAt, 0), nil
}

func (s *BboltStorage) DeleteToken() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLocal).Delete(keyToken)
	})
}

func (s *BboltStorage) ListPushSubscriptions() ([]DBPushSubscription, error) {
	var subs DBPushSubscriptions
	s.load(&subs)
	return subs.Subscriptions, nil
}

// AddPushSubscription stores sub, replacing any subscription with the same endpoint.
func (s *BboltStorage) AddPushSubscription(sub DBPushSubscription) error {
	var subs DBPushSubscriptions
	s.load(&subs)
	for i, existing := range subs.Subscriptions {
		if existing.Endpoint == sub.Endpoint {
			subs.Subscriptions[i] = sub
			return s.save(&subs)
		}
	}
	subs.Subscriptions = append(subs.Subscriptions, sub)
	return s.save(&subs)
}

func (s *BboltStorage) RemovePushSubscription(endpoint string) error {
	var subs DBPushSubscriptions
	if !s.load(&subs) {
		return nil
	}
	kept := subs.Subscriptions[:0]
	for _, existing := range subs.Subscriptions {
		if existing.Endpoint != endpoint {
			kept = append(kept, existing)
		}
	}
	subs.Subscriptions = kept
	return s.save(&subs)
}

func contactToDB(c models.Contact) DBContact {
	return DBContact{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		AvatarURL:   c.AvatarURL,
		Status:      string(c.Status),
		LastMessage: c.LastMessage,
		LastActive:  c.LastActive,
	}
}

func contactFromDB(c DBContact) models.Contact {
	return models.Contact{
		ID:          c.ID,
		Email:       c.Email,
		Name:        c.Name,
		AvatarURL:   c.AvatarURL,
		Status:      models.PresenceStatus(c.Status),
		LastMessage: c.LastMessage,
		LastActive:  c.LastActive,
	}
}

func messageToDB(m models.Message) DBMessage {
	dbMsg := DBMessage{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
		Status:    string(m.Status),
		Text:      m.Text(),
		HTML:      m.HTML,
	}
	if m.Content != nil {
		dbMsg.Kind = string(m.Content.Kind())
	}
	if media, ok := m.Media(); ok {
		dbMsg.MediaURL = media.URL
		dbMsg.MimeType = media.MimeType
		dbMsg.FileName = media.Name
	}
	if v, ok := m.Content.(models.Voice); ok {
		dbMsg.DurationSec = v.DurationSec
	}
	return dbMsg
}

func messageFromDB(m DBMessage) (models.Message, error) {
	media := models.MediaRef{URL: m.MediaURL, MimeType: m.MimeType, Name: m.FileName}

	var content models.Content
	switch models.ContentKind(m.Kind) {
	case models.KindText:
		content = models.Text{Text: m.Text}
	case models.KindImage:
		content = models.Image{Media: media, Caption: m.Text}
	case models.KindVideo:
		content = models.Video{Media: media, Caption: m.Text}
	case models.KindFile:
		content = models.File{Media: media}
	case models.KindVoice:
		content = models.Voice{Media: media, DurationSec: m.DurationSec}
	default:
		return models.Message{}, fmt.Errorf("unknown content kind %q", m.Kind)
	}

	status := models.DeliveryStatus(m.Status)
	if status != models.DeliveryRead {
		status = models.DeliverySent
	}

	return models.Message{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
		Status:    status,
		Content:   content,
		HTML:      m.HTML,
	}, nil
}
