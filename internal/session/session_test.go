package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"connectifyr/internal/assistant"
	"connectifyr/internal/directory"
	"connectifyr/internal/models"
	"connectifyr/internal/push"
	"connectifyr/internal/scheduler"
	"connectifyr/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ServerEvent
}

func (p *recordingPublisher) Publish(event models.ServerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(t models.ServerEventType) []models.ServerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ServerEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeAssistant struct {
	reply    string
	replyErr error
	speech   assistant.Speech
	speakErr error
	block    chan struct{}

	mu      sync.Mutex
	history []models.Message
}

func (a *fakeAssistant) Reply(ctx context.Context, history []models.Message, msg models.Message) (string, error) {
	a.mu.Lock()
	a.history = history
	a.mu.Unlock()
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return a.reply, a.replyErr
}

func (a *fakeAssistant) Speak(ctx context.Context, text string) (assistant.Speech, error) {
	return a.speech, a.speakErr
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []push.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, note push.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

type testEnv struct {
	path      string
	store     *storage.BboltStorage
	clock     *scheduler.ManualClock
	publisher *recordingPublisher
	assistant *fakeAssistant
	notifier  *recordingNotifier
}

var testConfig = Config{ReadReceiptDelay: 2 * time.Second, AcceptDelay: 5 * time.Second}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := storage.NewBboltStorage(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &testEnv{
		path:      path,
		store:     store,
		clock:     scheduler.NewManualClock(time.UnixMilli(1_700_000_000_000)),
		publisher: &recordingPublisher{},
		assistant: &fakeAssistant{reply: "**Yaho!**", speech: assistant.Speech{DataURL: "data:audio/wav;base64,AA==", Duration: 3 * time.Second}},
		notifier:  &recordingNotifier{},
	}
}

func (e *testEnv) open(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), testConfig, Deps{
		Store:     e.store,
		Publisher: e.publisher,
		Assistant: e.assistant,
		Notifier:  e.notifier,
		Clock:     e.clock,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func login(t *testing.T, s *Session, remember bool) {
	t.Helper()
	_, err := s.Login("Taro", "Taro@Example.com", true, remember)
	require.NoError(t, err)
}

func TestLoginValidation(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)

	_, err := s.Login("", "taro@example.com", true, false)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Name is required!", verr.Message)

	_, err = s.Login("Taro", "taro@example.com", false, false)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Must agree to terms!", verr.Message)

	assert.False(t, s.Authenticated())
	_, err = s.Contacts("")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestLogin(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)

	profile, err := s.Login("  Taro ", "Taro@Example.com", true, true)
	require.NoError(t, err)
	assert.Equal(t, "Taro", profile.Name)
	assert.Equal(t, "taro@example.com", profile.Email)
	assert.Equal(t, directory.DefaultAvatar("Taro"), profile.AvatarURL)

	contacts, err := s.Contacts("")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, models.AIContactID, contacts[0].ID)
	assert.Len(t, env.publisher.ofType(models.ServerEventProfile), 1)
}

func TestRememberedLoginSurvivesRestart(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)
	_, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)
	s.Close()

	restored := env.open(t)
	assert.True(t, restored.Authenticated())
	profile, err := restored.Profile()
	require.NoError(t, err)
	assert.Equal(t, "Taro", profile.Name)
	contacts, err := restored.Contacts("hanako")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestUnrememberedLoginIsWipedOnRestart(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, false)
	_, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)
	s.Close()

	restored := env.open(t)
	assert.False(t, restored.Authenticated())

	state := env.store.LoadState()
	assert.False(t, state.Authenticated)
	assert.Nil(t, state.Profile)
	require.Len(t, state.Contacts, 1)
	assert.Equal(t, models.AIContactID, state.Contacts[0].ID)
}

func TestAddContactAcceptedAfterDelay(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)

	contact, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOffline, contact.Status)
	assert.Equal(t, directory.NewContactPreview, contact.LastMessage)

	env.clock.Advance(4 * time.Second)
	assert.Empty(t, env.publisher.ofType(models.ServerEventPresence))

	env.clock.Advance(time.Second)
	presence := env.publisher.ofType(models.ServerEventPresence)
	require.Len(t, presence, 1)
	assert.Equal(t, contact.ID, presence[0].ContactID)
	assert.Equal(t, models.PresenceOnline, presence[0].Presence)

	contacts, err := s.Contacts("hanako")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, models.PresenceOnline, contacts[0].Status)
	assert.Empty(t, s.PendingTasks())
}

func TestAddContactDuplicateEmail(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)

	_, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)
	_, err = s.AddContact("Other", "HANAKO@example.com")
	assert.ErrorIs(t, err, directory.ErrDuplicateEmail)

	_, err = s.AddContact("Hanako", "not-an-email")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSendMarksReadAfterDelay(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)
	contact, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)

	msg, err := s.Send(contact.ID, models.Text{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySent, msg.Status)
	assert.Equal(t, models.SelfID, msg.SenderID)

	env.clock.Advance(2 * time.Second)

	statuses := env.publisher.ofType(models.ServerEventStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, msg.ID, statuses[0].MessageID)

	messages, err := s.Messages(contact.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.DeliveryRead, messages[0].Status)

	// read never reverts, even after more time passes
	env.clock.Advance(time.Minute)
	messages, err = s.Messages(contact.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryRead, messages[0].Status)
	assert.Len(t, env.publisher.ofType(models.ServerEventStatus), 1)

	state := env.store.LoadState()
	assert.Equal(t, models.DeliveryRead, state.Chats[contact.ID][0].Status)
}

func TestUserTextIsStoredAsTyped(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)

	profile, err := s.Login("Tom & Jerry", "tom@example.com", true, true)
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry", profile.Name)

	contact, err := s.AddContact("Ben & <b>Jerry's</b>", "ben@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ben & Jerry's", contact.Name)

	text := `is 3 < 5 & 5 > 3? "yes" <script>x</script>`
	_, err = s.Send(contact.ID, models.Text{Text: text})
	require.NoError(t, err)
	_, err = s.Send(contact.ID, models.Image{
		Media:   models.MediaRef{URL: "data:image/png;base64,AA==", MimeType: "image/png"},
		Caption: "a < b & \"c\"",
	})
	require.NoError(t, err)

	messages, err := s.Messages(contact.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, text, messages[0].Text())
	assert.Empty(t, messages[0].HTML)
	assert.Equal(t, "a < b & \"c\"", messages[1].Text())

	state := env.store.LoadState()
	assert.Equal(t, "Tom & Jerry", state.Profile.Name)
	assert.Equal(t, "Ben & Jerry's", state.Contacts[1].Name)
	assert.Equal(t, text, state.Chats[contact.ID][0].Text())
}

func TestLoginOverActiveSession(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)
	contact, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)
	_, err = s.Send(contact.ID, models.Text{Text: "secret"})
	require.NoError(t, err)

	_, err = s.Login("Mallory", "mallory@example.com", true, true)
	require.ErrorIs(t, err, ErrAnotherUser)

	profile, err := s.Profile()
	require.NoError(t, err)
	assert.Equal(t, "taro@example.com", profile.Email)
	assert.Len(t, env.publisher.ofType(models.ServerEventProfile), 1)

	// the same user logging in again resumes where they left off
	resumed, err := s.Login("Someone Else", "TARO@example.com", true, false)
	require.NoError(t, err)
	assert.Equal(t, "Taro", resumed.Name)
	messages, err := s.Messages(contact.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.False(t, env.store.LoadState().Remember)
}

func TestSendRejectsEmptyAndUnknown(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)

	_, err := s.Send(models.AIContactID, models.Text{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = s.Send("nobody", models.Text{Text: "hi"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = s.Messages("nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSendToAIContact(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)

	first, err := s.Send(models.AIContactID, models.Text{Text: "hi"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(env.publisher.ofType(models.ServerEventAudio)) == 1
	}, time.Second, 5*time.Millisecond)

	messages, err := s.Messages(models.AIContactID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	reply := messages[1]
	assert.Equal(t, models.AIContactID, reply.SenderID)
	assert.Equal(t, models.DeliveryRead, reply.Status)
	assert.Equal(t, "**Yaho!**", reply.Text())
	assert.Contains(t, reply.HTML, "<strong>Yaho!</strong>")

	typing := env.publisher.ofType(models.ServerEventTyping)
	require.Len(t, typing, 2)
	assert.True(t, typing[0].Active)
	assert.False(t, typing[1].Active)

	audio := env.publisher.ofType(models.ServerEventAudio)
	assert.Equal(t, reply.ID, audio[0].MessageID)
	assert.Contains(t, s.PendingTasks(), "speaking:"+reply.ID)

	env.notifier.mu.Lock()
	require.Len(t, env.notifier.notes, 1)
	assert.Equal(t, directory.AIContactName, env.notifier.notes[0].Title)
	env.notifier.mu.Unlock()

	// speaking clears once the clip has played
	env.clock.Advance(3 * time.Second)
	speaking := env.publisher.ofType(models.ServerEventSpeaking)
	require.Len(t, speaking, 2)
	assert.True(t, speaking[0].Active)
	assert.False(t, speaking[1].Active)

	// prior history excludes the message being answered
	env.assistant.mu.Lock()
	assert.Empty(t, env.assistant.history)
	env.assistant.mu.Unlock()

	contacts, err := s.Contacts("")
	require.NoError(t, err)
	assert.Equal(t, "**Yaho!**", contacts[0].LastMessage)
	assert.NotEqual(t, first.ID, reply.ID)
}

func TestAIFailureAppendsNothing(t *testing.T) {
	env := newEnv(t)
	env.assistant.replyErr = errors.New("quota exceeded")
	s := env.open(t)
	login(t, s, true)

	_, err := s.Send(models.AIContactID, models.Text{Text: "hi"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(env.publisher.ofType(models.ServerEventTyping)) == 2
	}, time.Second, 5*time.Millisecond)
	typing := env.publisher.ofType(models.ServerEventTyping)
	assert.False(t, typing[1].Active)

	messages, err := s.Messages(models.AIContactID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Empty(t, env.publisher.ofType(models.ServerEventSpeaking))
}

func TestLogoutDiscardsPendingWork(t *testing.T) {
	env := newEnv(t)
	env.assistant.block = make(chan struct{})
	s := env.open(t)
	login(t, s, true)

	contact, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)
	_, err = s.Send(contact.ID, models.Text{Text: "hello"})
	require.NoError(t, err)
	_, err = s.Send(models.AIContactID, models.Text{Text: "hi"})
	require.NoError(t, err)
	assert.Len(t, s.PendingTasks(), 3)

	require.NoError(t, s.Logout())
	assert.Empty(t, s.PendingTasks())
	assert.Len(t, env.publisher.ofType(models.ServerEventLogout), 1)

	env.clock.Advance(time.Minute)
	assert.Empty(t, env.publisher.ofType(models.ServerEventPresence))
	assert.Empty(t, env.publisher.ofType(models.ServerEventStatus))

	state := env.store.LoadState()
	assert.False(t, state.Authenticated)
	require.Len(t, state.Contacts, 1)
	assert.Equal(t, models.AIContactID, state.Contacts[0].ID)
	assert.Empty(t, state.Chats)

	login(t, s, true)
	messages, err := s.Messages(models.AIContactID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestLogoutClearsSpeaking(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)

	_, err := s.Send(models.AIContactID, models.Text{Text: "hi"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(env.publisher.ofType(models.ServerEventAudio)) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Logout())
	speaking := env.publisher.ofType(models.ServerEventSpeaking)
	require.Len(t, speaking, 2)
	assert.True(t, speaking[0].Active)
	assert.False(t, speaking[1].Active)
	assert.Empty(t, s.PendingTasks())

	env.clock.Advance(time.Minute)
	assert.Len(t, env.publisher.ofType(models.ServerEventSpeaking), 2)
}

func TestChangeAvatar(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)

	profile, err := s.ChangeAvatar("https://example.com/me.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/me.png", profile.AvatarURL)

	_, err = s.ChangeAvatar("javascript:alert(1)")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	state := env.store.LoadState()
	require.NotNil(t, state.Profile)
	assert.Equal(t, "https://example.com/me.png", state.Profile.AvatarURL)
}

func TestCloseCancelsTasks(t *testing.T) {
	env := newEnv(t)
	s := env.open(t)
	login(t, s, true)
	_, err := s.AddContact("Hanako", "hanako@example.com")
	require.NoError(t, err)

	s.Close()
	assert.Empty(t, s.PendingTasks())
	assert.Zero(t, env.clock.Pending())

	_, err = s.Contacts("")
	assert.ErrorIs(t, err, ErrClosed)
}
