package internal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T, maxEntries int) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "data", "journal.db"), maxEntries)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecentNewestFirst(t *testing.T) {
	j := openTestJournal(t, 0)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, j.Record(JournalEntry{ReqID: i, Action: "query_assets", Success: true}))
	}

	all, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{all[0].ReqID, all[1].ReqID, all[2].ReqID})

	two, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, int64(3), two[0].ReqID)
}

func TestJournalPrunesOldest(t *testing.T) {
	j := openTestJournal(t, 5)

	for i := int64(1); i <= 12; i++ {
		require.NoError(t, j.Record(JournalEntry{ReqID: i, Action: "query_orders"}))
	}

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, int64(12), entries[0].ReqID)
	assert.Equal(t, int64(8), entries[4].ReqID)
}

func TestJournalKeepsRepeatedReqIDs(t *testing.T) {
	j := openTestJournal(t, 0)

	// Un reinicio del proceso vuelve a empezar en 1
	require.NoError(t, j.Record(JournalEntry{ReqID: 1, Session: "a", Code: "TIMEOUT"}))
	require.NoError(t, j.Record(JournalEntry{ReqID: 1, Session: "b", Success: true}))

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Session)
	assert.Equal(t, "TIMEOUT", entries[1].Code)
}

func TestJournalReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := OpenJournal(path, 0)
	require.NoError(t, err)
	require.NoError(t, j.Record(JournalEntry{ReqID: 42, Action: "place_order"}))
	require.NoError(t, j.Close())

	j, err = OpenJournal(path, 0)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].ReqID)
}

func TestJournalCloseNil(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Close())
}

// gatedJournal bloquea cada Record hasta que se cierre release.
type gatedJournal struct {
	memJournal
	release chan struct{}
}

func (j *gatedJournal) Record(e JournalEntry) error {
	<-j.release
	return j.memJournal.Record(e)
}

func TestJournalWriterDoesNotBlockCaller(t *testing.T) {
	slow := &gatedJournal{release: make(chan struct{})}
	w := newJournalWriter(slow, newTestTelemetry(t))

	returned := make(chan error, 1)
	go func() { returned <- w.Record(JournalEntry{ReqID: 1}) }()
	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Record blocked on the journal commit")
	}
	require.NoError(t, w.Record(JournalEntry{ReqID: 2}))
	assert.Empty(t, slow.all())

	close(slow.release)
	w.Close()
	entries := slow.all()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ReqID)
	assert.Equal(t, int64(2), entries[1].ReqID)

	assert.ErrorIs(t, w.Record(JournalEntry{ReqID: 3}), ErrBridgeClosed)
	w.Close()
}

func TestJournalWriterBacklogFull(t *testing.T) {
	slow := &gatedJournal{release: make(chan struct{})}
	w := newJournalWriter(slow, newTestTelemetry(t))

	var backlog error
	for i := 0; i < journalQueueSize+2; i++ {
		if err := w.Record(JournalEntry{ReqID: int64(i)}); err != nil {
			backlog = err
			break
		}
	}
	assert.ErrorIs(t, backlog, ErrJournalBacklog)

	close(slow.release)
	w.Close()
}

func TestJournalWriterPersistsToBolt(t *testing.T) {
	j := openTestJournal(t, 0)
	w := newJournalWriter(j, newTestTelemetry(t))

	require.NoError(t, w.Record(JournalEntry{ReqID: 7, Action: "query_assets", Success: true}))
	w.Close()

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "query_assets", entries[0].Action)
}
