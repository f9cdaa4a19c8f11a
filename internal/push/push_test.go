package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"connectifyr/internal/storage"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	subs []storage.DBPushSubscription
}

func (m *memoryStore) ListPushSubscriptions() ([]storage.DBPushSubscription, error) {
	return append([]storage.DBPushSubscription(nil), m.subs...), nil
}

func (m *memoryStore) AddPushSubscription(sub storage.DBPushSubscription) error {
	m.subs = append(m.subs, sub)
	return nil
}

func (m *memoryStore) RemovePushSubscription(endpoint string) error {
	kept := m.subs[:0]
	for _, s := range m.subs {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	return nil
}

func enabledConfig() Config {
	return Config{PublicKey: "pub", PrivateKey: "priv", Subscriber: "mailto:test@example.com"}
}

func TestSubscribe(t *testing.T) {
	store := &memoryStore{}

	disabled := New(Config{}, store, nil)
	assert.ErrorIs(t, disabled.Subscribe(webpush.Subscription{Endpoint: "https://push/1"}), ErrDisabled)

	svc := New(enabledConfig(), store, nil)
	assert.Error(t, svc.Subscribe(webpush.Subscription{Endpoint: "https://push/1"}))

	require.NoError(t, svc.Subscribe(webpush.Subscription{
		Endpoint: "https://push/1",
		Keys:     webpush.Keys{Auth: "a", P256dh: "p"},
	}))
	require.Len(t, store.subs, 1)
	assert.Equal(t, "p", store.subs[0].P256dh)
}

func TestNotify(t *testing.T) {
	store := &memoryStore{subs: []storage.DBPushSubscription{
		{Endpoint: "https://push/ok", Auth: "a", P256dh: "p"},
		{Endpoint: "https://push/gone", Auth: "a", P256dh: "p"},
	}}
	svc := New(enabledConfig(), store, nil)

	var sent []string
	svc.send = func(_ context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		var n Notification
		require.NoError(t, json.Unmarshal(payload, &n))
		assert.Equal(t, "Gemini-chan", n.Title)
		assert.Equal(t, "pub", opts.VAPIDPublicKey)

		sent = append(sent, sub.Endpoint)
		status := http.StatusCreated
		if strings.HasSuffix(sub.Endpoint, "gone") {
			status = http.StatusGone
		}
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
	}

	require.NoError(t, svc.Notify(context.Background(), Notification{Title: "Gemini-chan", Body: "Yaho!"}))
	assert.Equal(t, []string{"https://push/ok", "https://push/gone"}, sent)
	require.Len(t, store.subs, 1)
	assert.Equal(t, "https://push/ok", store.subs[0].Endpoint)
}

func TestNotifyDisabled(t *testing.T) {
	svc := New(Config{}, &memoryStore{subs: []storage.DBPushSubscription{{Endpoint: "x"}}}, nil)
	svc.send = func(context.Context, []byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		t.Fatal("must not send when disabled")
		return nil, nil
	}
	assert.NoError(t, svc.Notify(context.Background(), Notification{Title: "x"}))
}
