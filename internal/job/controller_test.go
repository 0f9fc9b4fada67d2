package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spacefeed/spacefeed/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory object store. Fetch can be made to block per key
// so tests can hold a run mid-file deterministically.
type fakeStore struct {
	keys    []string
	listErr error
	files   map[string][]byte
	fetchErr map[string]error

	mu          sync.Mutex
	fetched     []string
	fetchHold   map[string]chan struct{} // closed to release a blocked fetch
	fetchStarts chan string
}

func newFakeStore(files map[string][]byte, keys ...string) *fakeStore {
	return &fakeStore{
		keys:        keys,
		files:       files,
		fetchErr:    make(map[string]error),
		fetchHold:   make(map[string]chan struct{}),
		fetchStarts: make(chan string, 16),
	}
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.keys, nil
}

func (s *fakeStore) Fetch(ctx context.Context, key string, progress func(done, total int64)) ([]byte, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, key)
	hold := s.fetchHold[key]
	s.mu.Unlock()

	select {
	case s.fetchStarts <- key:
	default:
	}
	if hold != nil {
		<-hold
	}

	if err := s.fetchErr[key]; err != nil {
		return nil, err
	}
	data := s.files[key]
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return data, nil
}

func (s *fakeStore) fetchedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

// fakeWriter stores records in memory keyed by collection and url_id,
// reporting duplicates the way the real store does.
type fakeWriter struct {
	mu        sync.Mutex
	ensured   map[string]bool
	records   map[string]map[string]models.RowRecord
	failURLID string // insert error for this url_id
	ensureErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		ensured: make(map[string]bool),
		records: make(map[string]map[string]models.RowRecord),
	}
}

func (w *fakeWriter) EnsureCollection(ctx context.Context, collection string) error {
	if w.ensureErr != nil {
		return w.ensureErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensured[collection] = true
	if w.records[collection] == nil {
		w.records[collection] = make(map[string]models.RowRecord)
	}
	return nil
}

func (w *fakeWriter) Insert(ctx context.Context, collection string, rec models.RowRecord) (models.Outcome, error) {
	if rec.URLID == w.failURLID && w.failURLID != "" {
		return models.OutcomeError, errors.New("backend fault")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	coll := w.records[collection]
	if coll == nil {
		coll = make(map[string]models.RowRecord)
		w.records[collection] = coll
	}
	if _, ok := coll[rec.URLID]; ok {
		return models.OutcomeDuplicate, nil
	}
	coll[rec.URLID] = rec
	return models.OutcomeInserted, nil
}

func (w *fakeWriter) count(collection string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records[collection])
}

func (w *fakeWriter) collections() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var names []string
	for name := range w.records {
		names = append(names, name)
	}
	return names
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.Snapshot().State == StateIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("controller did not return to idle")
}

func TestRunPerFileScenario(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"in/a.csv": []byte("1,http://x\n2,http://y\n"),
		"in/b.csv": []byte("1,http://z\n"),
	}, "in/a.csv", "in/b.csv")
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(3), snap.Total)
	assert.Equal(t, uint64(3), snap.Inserted)
	assert.Equal(t, 2, writer.count("a"))
	assert.Equal(t, 1, writer.count("b"))
}

func TestRunFixedCollectionMode(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n"),
		"b.csv": []byte("2,http://y\n"),
	}, "a.csv", "b.csv")
	writer := newFakeWriter()

	c := New(store, writer, models.ModeFixed, "urls", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	assert.Equal(t, []string{"urls"}, writer.collections())
	assert.Equal(t, 2, writer.count("urls"))
}

func TestMalformedRowsCountedNotInserted(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\nbad\n"),
	}, "a.csv")
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Total)
	assert.Equal(t, uint64(1), snap.Inserted)
}

func TestRerunReportsDuplicates(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n2,http://y\n"),
	}, "a.csv")
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)
	require.Equal(t, uint64(2), c.Snapshot().Inserted)

	// Second run over the same data: every row is a duplicate.
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Total, "counters reset per run")
	assert.Equal(t, uint64(0), snap.Inserted)
	assert.Equal(t, 2, writer.count("a"), "no duplicate documents stored")
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n"),
	}, "a.csv")
	store.fetchHold["a.csv"] = make(chan struct{})
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	<-store.fetchStarts

	before := c.Snapshot()
	assert.False(t, c.Start(context.Background()), "second start must be rejected")
	after := c.Snapshot()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Inserted, after.Inserted)
	assert.Equal(t, before.Total, after.Total)

	close(store.fetchHold["a.csv"])
	waitIdle(t, c)
}

func TestStopHaltsAfterCurrentFile(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n"),
		"b.csv": []byte("2,http://y\n"),
		"c.csv": []byte("3,http://z\n"),
	}, "a.csv", "b.csv", "c.csv")
	store.fetchHold["a.csv"] = make(chan struct{})
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	<-store.fetchStarts

	// Stop lands while file a is mid-download; a must finish, b and c must
	// never start.
	c.Stop()
	assert.Equal(t, StateStopRequested, c.Snapshot().State)

	close(store.fetchHold["a.csv"])
	waitIdle(t, c)

	assert.Equal(t, []string{"a.csv"}, store.fetchedKeys())
	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.Total)
	assert.Equal(t, uint64(1), snap.Inserted)
}

func TestStopWhileIdleDoesNothing(t *testing.T) {
	c := New(newFakeStore(nil), newFakeWriter(), models.ModePerFile, "", nil)
	c.Stop()
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestListingFailureIsFatal(t *testing.T) {
	store := newFakeStore(nil)
	store.listErr = errors.New("bucket unreachable")
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(0), snap.Total)
	assert.Equal(t, uint64(0), snap.Inserted)
	assert.Empty(t, writer.collections())
}

func TestDownloadFailureSkipsFile(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n"),
		"b.csv": []byte("2,http://y\n"),
	}, "a.csv", "b.csv")
	store.fetchErr["a.csv"] = errors.New("transport fault")
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.Total, "failed file contributes no rows")
	assert.Equal(t, uint64(1), snap.Inserted)
	assert.Equal(t, 0, writer.count("a"))
	assert.Equal(t, 1, writer.count("b"))
}

func TestParseFailureSkipsFile(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": {0xff, 0xfe, 0x00}, // not UTF-8
		"b.csv": []byte("2,http://y\n"),
	}, "a.csv", "b.csv")
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap.Total)
	assert.Equal(t, uint64(1), snap.Inserted)
}

func TestRowWriteFailureSkipsRow(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n2,http://y\n"),
	}, "a.csv")
	writer := newFakeWriter()
	writer.failURLID = "1"

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Total)
	assert.Equal(t, uint64(1), snap.Inserted)
	assert.Equal(t, 1, writer.count("a"))
}

func TestCountersAreMonotonicDuringRun(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n2,http://y\n"),
		"b.csv": []byte("3,http://z\n"),
	}, "a.csv", "b.csv")
	writer := newFakeWriter()

	c := New(store, writer, models.ModePerFile, "", nil)

	var mu sync.Mutex
	var snaps []Snapshot
	c.SetProgressFunc(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snaps)
	for i := 1; i < len(snaps); i++ {
		assert.GreaterOrEqual(t, snaps[i].Inserted, snaps[i-1].Inserted, "inserted must never decrease")
		assert.GreaterOrEqual(t, snaps[i].Total, snaps[i-1].Total, "total must never decrease")
	}
}

func TestEnsureCollectionFailureSkipsFile(t *testing.T) {
	store := newFakeStore(map[string][]byte{
		"a.csv": []byte("1,http://x\n"),
	}, "a.csv")
	writer := newFakeWriter()
	writer.ensureErr = errors.New("ddl rejected")

	c := New(store, writer, models.ModePerFile, "", nil)
	require.True(t, c.Start(context.Background()))
	waitIdle(t, c)

	snap := c.Snapshot()
	assert.Equal(t, uint64(0), snap.Total)
	assert.Equal(t, uint64(0), snap.Inserted)
}
