package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStore_AppendAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "events.db")
	store, err := NewBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, &entity.AuditEvent{
			ID:        uuid.New(),
			Timestamp: time.Now(),
			Type:      entity.EventInvoiceAccepted,
			Severity:  entity.SeverityInfo,
			Details:   map[string]any{"number": fmt.Sprint(i)},
		}))
	}

	events, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "4", events[0].Details["number"])
	assert.Equal(t, "2", events[2].Details["number"])

	all, err := store.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := NewBoltStore(path)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, store.Append(context.Background(), &entity.AuditEvent{ID: id, Type: entity.EventArchiveCorrupt}))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
}

func TestBoltStore_EmptyRecent(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer store.Close()

	events, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
