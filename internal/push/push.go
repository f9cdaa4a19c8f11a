package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectifyr/internal/metrics"
	"connectifyr/internal/storage"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

var ErrDisabled = errors.New("push notifications are not configured")

type Store interface {
	ListPushSubscriptions() ([]storage.DBPushSubscription, error)
	AddPushSubscription(sub storage.DBPushSubscription) error
	RemovePushSubscription(endpoint string) error
}

type Config struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
	TTL        time.Duration
}

// Notification is the JSON payload read by the service worker.
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ContactID string `json:"contactId,omitempty"`
	Icon      string `json:"icon,omitempty"`
}

type Service struct {
	config Config
	store  Store
	logger *zap.Logger
	send   func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)
}

func New(config Config, store Store, logger *zap.Logger) *Service {
	if config.TTL == 0 {
		config.TTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config: config,
		store:  store,
		logger: logger.Named("push"),
		send:   webpush.SendNotificationWithContext,
	}
}

func (s *Service) Enabled() bool {
	return s.config.PublicKey != "" && s.config.PrivateKey != ""
}

func (s *Service) PublicKey() string {
	return s.config.PublicKey
}

// Subscribe registers a browser push subscription.
func (s *Service) Subscribe(sub webpush.Subscription) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if sub.Endpoint == "" || sub.Keys.Auth == "" || sub.Keys.P256dh == "" {
		return errors.New("incomplete push subscription")
	}
	return s.store.AddPushSubscription(storage.DBPushSubscription{
		Endpoint: sub.Endpoint,
		P256dh:   sub.Keys.P256dh,
		Auth:     sub.Keys.Auth,
	})
}

// Notify sends n to every subscription. Subscriptions the push service
// reports as gone are dropped.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if !s.Enabled() {
		return nil
	}

	subs, err := s.store.ListPushSubscriptions()
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	opts := &webpush.Options{
		Subscriber:      s.config.Subscriber,
		VAPIDPublicKey:  s.config.PublicKey,
		VAPIDPrivateKey: s.config.PrivateKey,
		TTL:             int(s.config.TTL.Seconds()),
	}

	var errs []error
	for _, dbSub := range subs {
		sub := &webpush.Subscription{
			Endpoint: dbSub.Endpoint,
			Keys:     webpush.Keys{Auth: dbSub.Auth, P256dh: dbSub.P256dh},
		}
		resp, err := s.send(ctx, payload, sub, opts)
		if err != nil {
			metrics.PushSent.WithLabelValues("error").Inc()
			errs = append(errs, err)
			continue
		}
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			metrics.PushSent.WithLabelValues("expired").Inc()
			s.logger.Info("dropping expired push subscription", zap.String("endpoint", dbSub.Endpoint))
			if err := s.store.RemovePushSubscription(dbSub.Endpoint); err != nil {
				errs = append(errs, err)
			}
		case resp.StatusCode >= 400:
			metrics.PushSent.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("push to %s: status %d", dbSub.Endpoint, resp.StatusCode))
		default:
			metrics.PushSent.WithLabelValues("ok").Inc()
		}
	}
	return errors.Join(errs...)
}
