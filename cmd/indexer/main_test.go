package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproof/internal/index"
	idxmem "docproof/internal/index/store/memory"
	"docproof/internal/platform/kafka/consumer"
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
)

func TestApplyHandler(t *testing.T) {
	ctx := context.Background()
	idx := index.New(idxmem.New())
	h := applyHandler(idx, slog.New(slog.DiscardHandler))

	rec, err := models.NewRecord(
		domain.MustParseFingerprint("abababababababababababababababababababababababababababababababab"),
		"m1", "bob", "alice", time.Now(),
	)
	require.NoError(t, err)
	evt := models.NewCreatedEvent(rec)
	evt.Sequence = 1
	raw, err := models.MarshalEvent(evt)
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, &consumer.Message{Value: raw}))
	fps, err := idx.QueryByOwner(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.Fingerprint{rec.Fingerprint}, fps)

	assert.NoError(t, h.Handle(ctx, &consumer.Message{Value: []byte("not json")}), "poison messages are skipped")
}
