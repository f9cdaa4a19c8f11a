package assistant

import (
	"context"
	"fmt"
	"time"

	"connectifyr/internal/gemini"
	"connectifyr/internal/media"
	"connectifyr/internal/metrics"
	"connectifyr/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const SystemInstruction = "You are 'Gemini-chan', a helpful and cheerful AI anime companion in the Connectifyr app. " +
	"Keep responses natural, concise, and professional. " +
	"If a user shares an image, acknowledge its contents warmly. Prioritize brevity."

const (
	imagePrompt = "What do you think of this image?"
	mediaPrompt = "Check this out!"
)

// Generator is the model backend.
type Generator interface {
	GenerateText(ctx context.Context, system string, contents []gemini.Content) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// MediaLoader resolves a media reference to its bytes and MIME type.
type MediaLoader interface {
	LoadMedia(ref models.MediaRef) (data []byte, mimeType string, err error)
}

// Speech is a playable rendition of a reply.
type Speech struct {
	DataURL  string
	Duration time.Duration
}

type Config struct {
	// HistoryWindow is how many earlier messages are sent as context.
	HistoryWindow int
	Rate          float64
	Burst         int
}

// Bridge turns chat history into model requests.
type Bridge struct {
	gen     Generator
	loader  MediaLoader
	limiter *rate.Limiter
	window  int
	logger  *zap.Logger
}

func New(gen Generator, loader MediaLoader, config Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if config.Rate > 0 {
		limit = rate.Limit(config.Rate)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Bridge{
		gen:     gen,
		loader:  loader,
		limiter: rate.NewLimiter(limit, burst),
		window:  config.HistoryWindow,
		logger:  logger.Named("assistant"),
	}
}

// EffectivePrompt is the text sent for a message. Media without text gets a
// stock prompt.
func EffectivePrompt(content models.Content) string {
	msg := models.Message{Content: content}
	if text := msg.Text(); text != "" {
		return text
	}
	switch content.(type) {
	case models.Text:
		return ""
	case models.Image:
		return imagePrompt
	default:
		return mediaPrompt
	}
}

func role(m models.Message) gemini.Role {
	if m.FromMe() {
		return gemini.RoleUser
	}
	return gemini.RoleModel
}

// Transcript maps the last messages of history to model turns. Messages that
// yield no parts are skipped.
func (b *Bridge) Transcript(history []models.Message) []gemini.Content {
	if b.window <= 0 {
		return nil
	}
	if len(history) > b.window {
		history = history[len(history)-b.window:]
	}

	contents := make([]gemini.Content, 0, len(history))
	for _, m := range history {
		var parts []gemini.Part
		if text := m.Text(); text != "" {
			parts = append(parts, gemini.TextPart(text))
		}
		if img, ok := m.Content.(models.Image); ok {
			if part, ok := b.imagePart(img.Media); ok {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, gemini.Content{Role: role(m), Parts: parts})
	}
	return contents
}

func (b *Bridge) imagePart(ref models.MediaRef) (gemini.Part, bool) {
	if b.loader == nil {
		return gemini.Part{}, false
	}
	data, mimeType, err := b.loader.LoadMedia(ref)
	if err != nil {
		b.logger.Debug("skipping image", zap.String("url", ref.URL), zap.Error(err))
		return gemini.Part{}, false
	}
	return gemini.ImagePart(mimeType, data), true
}

// Reply asks for the answer to msg given the history that preceded it.
func (b *Bridge) Reply(ctx context.Context, history []models.Message, msg models.Message) (string, error) {
	parts := []gemini.Part{gemini.TextPart(EffectivePrompt(msg.Content))}
	if img, ok := msg.Content.(models.Image); ok {
		if part, ok := b.imagePart(img.Media); ok {
			parts = append(parts, part)
		}
	}
	contents := append(b.Transcript(history), gemini.Content{Role: gemini.RoleUser, Parts: parts})

	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	reply, err := b.gen.GenerateText(ctx, SystemInstruction, contents)
	observe("text", start, err)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return reply, nil
}

// Speak synthesizes text and wraps the audio in a WAV data URL.
func (b *Bridge) Speak(ctx context.Context, text string) (Speech, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return Speech{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	pcm, err := b.gen.Synthesize(ctx, text)
	observe("speech", start, err)
	if err != nil {
		return Speech{}, fmt.Errorf("synthesize: %w", err)
	}

	wav := media.PCMToWAV(pcm, media.SpeechSampleRate, media.SpeechChannels)
	return Speech{
		DataURL:  media.DataURL("audio/wav", wav),
		Duration: media.PCMDuration(len(pcm), media.SpeechSampleRate, media.SpeechChannels),
	}, nil
}

func observe(endpoint string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AIRequests.WithLabelValues(endpoint, result).Inc()
	metrics.AILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
