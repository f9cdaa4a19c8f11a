package chat

import (
	"fmt"
	"testing"

	"connectifyr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage(id, text string) models.Message {
	return models.Message{ID: id, SenderID: models.SelfID, Status: models.DeliverySent, Content: models.Text{Text: text}}
}

func TestHistoryAppendAndLast(t *testing.T) {
	h := NewHistory("c1", nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(textMessage(fmt.Sprintf("m%d", i), fmt.Sprintf("msg %d", i))))
	}

	recs := h.Last(2)
	require.Len(t, recs, 2)
	assert.Equal(t, "msg 3", recs[0].Text())
	assert.Equal(t, "msg 4", recs[1].Text())

	assert.Len(t, h.Last(100), 5)
	assert.Empty(t, h.Last(0))

	assert.Equal(t, "m4", h.All()[4].ID)
}

func TestHistoryRejectsDuplicateID(t *testing.T) {
	h := NewHistory("c1", nil)
	require.NoError(t, h.Append(textMessage("m1", "a")))
	require.Error(t, h.Append(textMessage("m1", "b")))
	assert.Equal(t, 1, h.Len())
}

func TestHistoryLastIsACopy(t *testing.T) {
	h := NewHistory("c1", []models.Message{textMessage("m1", "a")})
	recs := h.Last(1)
	recs[0].Status = models.DeliveryRead

	all := h.All()
	assert.Equal(t, models.DeliverySent, all[0].Status)
}

func TestHistoryMarkRead(t *testing.T) {
	h := NewHistory("c1", []models.Message{textMessage("m1", "a")})

	changed, err := h.MarkRead("m1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.MarkRead("m1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = h.MarkRead("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBook(t *testing.T) {
	b := NewBook(map[string][]models.Message{
		"c1": {textMessage("m1", "a")},
	})

	_, ok := b.Peek("c2")
	assert.False(t, ok)

	require.NoError(t, b.History("c2").Append(textMessage("m2", "b")))
	b.History("c3") // empty histories are not persisted

	snap := b.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, "b", snap["c2"][0].Text())

	b.Reset()
	assert.Empty(t, b.Snapshot())
}
