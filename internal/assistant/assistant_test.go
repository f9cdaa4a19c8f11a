package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"connectifyr/internal/gemini"
	"connectifyr/internal/media"
	"connectifyr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	system   string
	contents []gemini.Content
	reply    string
	pcm      []byte
	err      error
}

func (f *fakeGenerator) GenerateText(_ context.Context, system string, contents []gemini.Content) (string, error) {
	f.system = system
	f.contents = contents
	return f.reply, f.err
}

func (f *fakeGenerator) Synthesize(_ context.Context, _ string) ([]byte, error) {
	return f.pcm, f.err
}

type fakeLoader map[string][]byte

func (f fakeLoader) LoadMedia(ref models.MediaRef) ([]byte, string, error) {
	data, ok := f[ref.URL]
	if !ok {
		return nil, "", models.ErrNotFound
	}
	return data, ref.MimeType, nil
}

func msg(id, sender string, content models.Content) models.Message {
	return models.Message{ID: id, SenderID: sender, Content: content}
}

func TestEffectivePrompt(t *testing.T) {
	ref := models.MediaRef{URL: "/api/media/x"}
	assert.Equal(t, "hello", EffectivePrompt(models.Text{Text: "hello"}))
	assert.Equal(t, "look", EffectivePrompt(models.Image{Media: ref, Caption: "look"}))
	assert.Equal(t, "What do you think of this image?", EffectivePrompt(models.Image{Media: ref}))
	assert.Equal(t, "Check this out!", EffectivePrompt(models.Video{Media: ref}))
	assert.Equal(t, "Check this out!", EffectivePrompt(models.File{Media: ref}))
	assert.Equal(t, "Check this out!", EffectivePrompt(models.Voice{Media: ref}))
}

func TestTranscript(t *testing.T) {
	loader := fakeLoader{"/api/media/cat": []byte{1, 2}}
	b := New(&fakeGenerator{}, loader, Config{HistoryWindow: 6}, nil)

	var history []models.Message
	for i := 0; i < 8; i++ {
		history = append(history, msg(fmt.Sprint(i), models.SelfID, models.Text{Text: fmt.Sprint("t", i)}))
	}
	history = append(history,
		msg("img", models.SelfID, models.Image{Media: models.MediaRef{URL: "/api/media/cat", MimeType: "image/jpeg"}}),
		msg("voice", models.SelfID, models.Voice{Media: models.MediaRef{URL: "data:audio/webm;base64,AA=="}}),
		msg("ai", models.AIContactID, models.Text{Text: "nice cat"}),
	)

	contents := b.Transcript(history)
	// Window of six: t5 t6 t7 img voice ai, voice has no parts.
	require.Len(t, contents, 5)
	assert.Equal(t, "t5", contents[0].Parts[0].Text)
	assert.Equal(t, gemini.RoleUser, contents[0].Role)

	img := contents[3]
	require.Len(t, img.Parts, 1)
	require.NotNil(t, img.Parts[0].InlineData)
	assert.Equal(t, "image/jpeg", img.Parts[0].InlineData.MimeType)

	assert.Equal(t, gemini.RoleModel, contents[4].Role)
	assert.Equal(t, "nice cat", contents[4].Parts[0].Text)
}

func TestTranscriptMissingImage(t *testing.T) {
	b := New(&fakeGenerator{}, fakeLoader{}, Config{HistoryWindow: 6}, nil)
	contents := b.Transcript([]models.Message{
		msg("img", models.SelfID, models.Image{Media: models.MediaRef{URL: "/api/media/gone"}, Caption: "see"}),
		msg("img2", models.SelfID, models.Image{Media: models.MediaRef{URL: "/api/media/gone"}}),
	})
	require.Len(t, contents, 1)
	assert.Equal(t, []gemini.Part{{Text: "see"}}, contents[0].Parts)
}

func TestReply(t *testing.T) {
	gen := &fakeGenerator{reply: "Yaho!"}
	loader := fakeLoader{"/api/media/cat": []byte{9}}
	b := New(gen, loader, Config{HistoryWindow: 6}, nil)

	history := []models.Message{msg("1", models.SelfID, models.Text{Text: "hi"})}
	current := msg("2", models.SelfID, models.Image{Media: models.MediaRef{URL: "/api/media/cat", MimeType: "image/png"}})

	reply, err := b.Reply(context.Background(), history, current)
	require.NoError(t, err)
	assert.Equal(t, "Yaho!", reply)
	assert.Equal(t, SystemInstruction, gen.system)

	require.Len(t, gen.contents, 2)
	last := gen.contents[1]
	assert.Equal(t, gemini.RoleUser, last.Role)
	require.Len(t, last.Parts, 2)
	assert.Equal(t, "What do you think of this image?", last.Parts[0].Text)
	assert.Equal(t, []byte{9}, last.Parts[1].InlineData.Data)
}

func TestReplyError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	b := New(gen, nil, Config{HistoryWindow: 6}, nil)

	_, err := b.Reply(context.Background(), nil, msg("1", models.SelfID, models.Text{Text: "hi"}))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))
}

func TestReplyCancelledWhileLimited(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	b := New(gen, nil, Config{HistoryWindow: 6, Rate: 0.001, Burst: 1}, nil)

	_, err := b.Reply(context.Background(), nil, msg("1", models.SelfID, models.Text{Text: "a"}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.Reply(ctx, nil, msg("2", models.SelfID, models.Text{Text: "b"}))
	assert.Error(t, err)
}

func TestSpeak(t *testing.T) {
	pcm := make([]byte, media.SpeechSampleRate) // half a second
	b := New(&fakeGenerator{pcm: pcm}, nil, Config{}, nil)

	speech, err := b.Speak(context.Background(), "Yaho!")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, speech.Duration)

	mime, wav, err := media.ParseDataURL(speech.DataURL)
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", mime)
	assert.Len(t, wav, 44+len(pcm))
}
