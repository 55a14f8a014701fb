package offline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Text string `json:"text"`
}

func TestQueueEnqueueAckOrder(t *testing.T) {
	q, err := NewDurableQueue[note](NewMemoryStore[note]())
	require.NoError(t, err)

	a, err := q.Enqueue(note{Text: "a"})
	require.NoError(t, err)
	b, err := q.Enqueue(note{Text: "b"})
	require.NoError(t, err)
	c, err := q.Enqueue(note{Text: "c"})
	require.NoError(t, err)

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "a", pending[0].Value.Text)
	assert.Equal(t, "c", pending[2].Value.Text)

	require.NoError(t, q.Ack(a.ID, c.ID))
	pending = q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	// Double-ack and unknown IDs are harmless.
	require.NoError(t, q.Ack(a.ID, b.ID))
	require.NoError(t, q.Ack(b.ID))
	assert.Zero(t, q.Len())
}

func TestFileStoreSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	q, err := NewDurableQueue[note](NewFileStore[note](path))
	require.NoError(t, err)
	first, err := q.Enqueue(note{Text: "offline answer"})
	require.NoError(t, err)
	_, err = q.Enqueue(note{Text: "second"})
	require.NoError(t, err)

	// A new queue over the same file sees everything not yet acked, with
	// identities intact.
	reloaded, err := NewDurableQueue[note](NewFileStore[note](path))
	require.NoError(t, err)
	pending := reloaded.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, "offline answer", pending[0].Value.Text)

	require.NoError(t, reloaded.Ack(first.ID))
	again, err := NewDurableQueue[note](NewFileStore[note](path))
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())
}

func TestFileStoreEmptyAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	entries, err := NewFileStore[note](path).Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStoreLeavesNoTempDebris(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")

	store := NewFileStore[note](path)
	require.NoError(t, store.Save([]Entry[note]{}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "queue.json", files[0].Name())
}
