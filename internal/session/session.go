package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"connectifyr/internal/assistant"
	"connectifyr/internal/chat"
	"connectifyr/internal/directory"
	"connectifyr/internal/models"
	"connectifyr/internal/push"
	"connectifyr/internal/scheduler"
	"connectifyr/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrClosed           = errors.New("session closed")
	// ErrAnotherUser is returned when a different email tries to log in over
	// an active session.
	ErrAnotherUser = errors.New("another user is logged in")
)

type Store interface {
	LoadState() storage.State
	SaveAuth(authenticated, remember bool) error
	SaveProfile(profile models.Profile) error
	SaveContacts(contacts []models.Contact) error
	SaveChats(chats map[string][]models.Message) error
	Clear() error
}

type Publisher interface {
	Publish(event models.ServerEvent)
}

type Notifier interface {
	Notify(ctx context.Context, n push.Notification) error
}

type Assistant interface {
	Reply(ctx context.Context, history []models.Message, msg models.Message) (string, error)
	Speak(ctx context.Context, text string) (assistant.Speech, error)
}

type Config struct {
	ReadReceiptDelay time.Duration
	AcceptDelay      time.Duration
}

type Deps struct {
	Store     Store
	Publisher Publisher
	// Assistant is nil when the AI contact is disabled.
	Assistant Assistant
	Notifier  Notifier
	Clock     scheduler.Clock
	Logger    *zap.Logger
}

// Session owns the application state: the profile, the contact directory,
// the chat histories and every pending simulated transition. All mutations
// go through its methods and are written through to the store.
type Session struct {
	config    Config
	store     Store
	publisher Publisher
	assistant Assistant
	notifier  Notifier
	scheduler *scheduler.Scheduler
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	authenticated bool
	remember      bool
	profile       *models.Profile
	directory     *directory.Directory
	book          *chat.Book
	// epoch changes on logout so that in-flight replies are discarded.
	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.ServerEvent) {}

// Open restores the session from the store. A login that was not remembered
// does not survive a restart and its data is wiped.
func Open(ctx context.Context, config Config, deps Deps) (*Session, error) {
	if deps.Store == nil {
		return nil, errors.New("session store is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Session{
		config:    config,
		store:     deps.Store,
		publisher: deps.Publisher,
		assistant: deps.Assistant,
		notifier:  deps.Notifier,
		scheduler: scheduler.New(deps.Clock, deps.Logger),
		logger:    deps.Logger.Named("session"),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.epochCtx, s.epochCancel = context.WithCancel(s.ctx)

	state := deps.Store.LoadState()
	s.directory = directory.New(state.Contacts)
	s.book = chat.NewBook(state.Chats)

	switch {
	case state.Authenticated && state.Remember && state.Profile != nil:
		s.authenticated = true
		s.remember = true
		s.profile = state.Profile
	case state.Authenticated:
		s.logger.Info("previous login was not remembered, clearing local data")
		if err := s.resetLocked(); err != nil {
			s.cancel()
			return nil, err
		}
	}

	return s, nil
}

// Close cancels pending transitions and in-flight AI requests and waits for
// them to stop.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.scheduler.Close()
	s.wg.Wait()
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// PendingTasks lists the simulated transitions that have not fired yet.
func (s *Session) PendingTasks() []string {
	return s.scheduler.Pending()
}

func (s *Session) nowMillis() int64 {
	return s.scheduler.Now().UnixMilli()
}

func (s *Session) checkLocked() error {
	if s.closed {
		return ErrClosed
	}
	if !s.authenticated {
		return ErrNotAuthenticated
	}
	return nil
}

// resetLocked drops everything back to a fresh install: only the AI contact
// and no histories.
func (s *Session) resetLocked() error {
	s.epoch++
	s.epochCancel()
	s.epochCtx, s.epochCancel = context.WithCancel(s.ctx)
	speaking := false
	for _, name := range s.scheduler.Pending() {
		speaking = speaking || strings.HasPrefix(name, speakingTask)
	}
	s.scheduler.CancelAll()
	if speaking {
		s.publishActivity(models.ServerEventSpeaking, false)
	}

	s.authenticated = false
	s.remember = false
	s.profile = nil
	s.directory.Reset()
	s.book.Reset()

	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear storage: %w", err)
	}
	return s.persistLocked()
}

func (s *Session) persistLocked() error {
	if err := s.store.SaveContacts(s.directory.List()); err != nil {
		return fmt.Errorf("failed to save contacts: %w", err)
	}
	if err := s.store.SaveChats(s.book.Snapshot()); err != nil {
		return fmt.Errorf("failed to save chats: %w", err)
	}
	return nil
}

func (s *Session) persistChatsLocked() error {
	if err := s.store.SaveChats(s.book.Snapshot()); err != nil {
		return fmt.Errorf("failed to save chats: %w", err)
	}
	return nil
}
