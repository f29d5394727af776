package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/answer"
	"github.com/Mickaeljc/app-bofip/internal/fetch"
	"github.com/Mickaeljc/app-bofip/internal/history"
	"github.com/Mickaeljc/app-bofip/internal/kb"
	"github.com/Mickaeljc/app-bofip/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFetcher struct {
	calls  int
	result fetch.Result
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ fetch.Request) fetch.Result {
	f.calls++
	return f.result
}

type failingCache struct {
	status store.CacheStatus
	saves  int
}

func (c *failingCache) Load() store.CacheStatus { return c.status }

func (c *failingCache) Save(store.Dataset) error {
	c.saves++
	return &store.IOError{Op: "write", Path: "/readonly", Err: os.ErrPermission}
}

type syncLog struct{ syncs []history.Sync }

func (l *syncLog) RecordSync(s history.Sync) error {
	l.syncs = append(l.syncs, s)
	return nil
}

var buildOpts = kb.Options{Keywords: []string{"TVA", "Agriculture", "Impôts"}, Filter: true}

func records() []store.Record {
	return []store.Record{
		{Title: store.Str("A"), Description: store.Str("a"), Subject: store.Str("Agriculture et TVA")},
		{Title: store.Str("B"), Description: store.Str("b"), Subject: store.Str("Douanes")},
	}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), "bofip_data.json"), store.DefaultFieldNames)
}

func TestDecide(t *testing.T) {
	fresh := store.Fresh(store.Dataset{Complete: true})
	absent := store.Absent("no cache file")

	assert.Equal(t, UseCache, Decide(fresh, false))
	assert.Equal(t, Fetch, Decide(fresh, true))
	assert.Equal(t, Fetch, Decide(absent, false))
	assert.Equal(t, Fetch, Decide(absent, true))
}

func TestPrepareFetchesAndPersistsOnMiss(t *testing.T) {
	s := testStore(t)
	f := &fakeFetcher{result: fetch.Result{Records: records(), Complete: true}}
	log := &syncLog{}
	p := New(s, f, Options{Request: fetch.Request{Endpoint: "https://example.com"}, Build: buildOpts}, zaptest.NewLogger(t)).WithRecorder(log)

	out := p.Prepare(context.Background(), false)

	assert.Equal(t, Fetch, out.Action)
	assert.False(t, out.FromCache)
	assert.True(t, out.Saved)
	assert.NoError(t, out.FetchErr)
	assert.NoError(t, out.SaveErr)
	assert.True(t, out.Complete())
	require.Len(t, out.KB, 1)
	assert.Equal(t, "A", out.KB[0].Title)

	cached, ok := s.Load().Dataset()
	require.True(t, ok)
	assert.Len(t, cached.Records, 2)
	assert.Equal(t, "https://example.com", cached.Source)

	require.Len(t, log.syncs, 1)
	assert.Equal(t, 2, log.syncs[0].Records)
	assert.True(t, log.syncs[0].Complete)
}

func TestPrepareUsesCacheOnHit(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(store.Dataset{Records: records(), Complete: true}))
	f := &fakeFetcher{}

	out := New(s, f, Options{Build: buildOpts}, zaptest.NewLogger(t)).Prepare(context.Background(), false)

	assert.Zero(t, f.calls)
	assert.True(t, out.FromCache)
	assert.Equal(t, UseCache, out.Action)
	assert.Len(t, out.KB, 1)
}

func TestPrepareForceRefreshIgnoresCache(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(store.Dataset{Records: records()[:1], Complete: true}))
	f := &fakeFetcher{result: fetch.Result{Records: records(), Complete: true}}

	out := New(s, f, Options{Build: buildOpts}, zaptest.NewLogger(t)).Prepare(context.Background(), true)

	assert.Equal(t, 1, f.calls)
	assert.Len(t, out.Dataset.Records, 2)
}

func TestPrepareMalformedCacheRefetches(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("not json"), 0o644))
	f := &fakeFetcher{result: fetch.Result{Records: records(), Complete: true}}

	out := New(s, f, Options{Build: buildOpts}, zaptest.NewLogger(t)).Prepare(context.Background(), false)

	assert.Equal(t, 1, f.calls)
	assert.True(t, out.Saved)
}

func TestPreparePartialNotPersistedByDefault(t *testing.T) {
	s := testStore(t)
	boom := &fetch.StatusError{Offset: 100, Code: 503}
	f := &fakeFetcher{result: fetch.Result{Records: records(), Err: boom}}

	out := New(s, f, Options{Build: buildOpts}, zaptest.NewLogger(t)).Prepare(context.Background(), false)

	assert.False(t, out.Complete())
	assert.False(t, out.Saved)
	assert.NoError(t, out.SaveErr)
	assert.ErrorIs(t, out.FetchErr, boom)
	assert.Len(t, out.KB, 1, "partial data is still usable")
	assert.False(t, s.Load().Fresh())
}

func TestPreparePartialPersistedWhenEnabled(t *testing.T) {
	s := testStore(t)
	f := &fakeFetcher{result: fetch.Result{Records: records(), Err: errors.New("reset")}}

	out := New(s, f, Options{Build: buildOpts, PersistPartial: true}, zaptest.NewLogger(t)).Prepare(context.Background(), false)

	assert.True(t, out.Saved)
	cached, ok := s.Load().Dataset()
	require.True(t, ok)
	assert.False(t, cached.Complete)
}

func TestPrepareEmptyFailedFetchNeverPersisted(t *testing.T) {
	s := testStore(t)
	f := &fakeFetcher{result: fetch.Result{Err: errors.New("no route to host")}}

	out := New(s, f, Options{Build: buildOpts, PersistPartial: true}, zaptest.NewLogger(t)).Prepare(context.Background(), false)

	assert.False(t, out.Saved)
	assert.Error(t, out.FetchErr)
	assert.True(t, out.KB.Empty())
	assert.False(t, s.Load().Fresh())
}

func TestPrepareEmptyAfterFilterIsNotAFailure(t *testing.T) {
	s := testStore(t)
	f := &fakeFetcher{result: fetch.Result{Records: records()[1:], Complete: true}}

	out := New(s, f, Options{Build: buildOpts}, zaptest.NewLogger(t)).Prepare(context.Background(), false)

	assert.True(t, out.KB.Empty())
	assert.NoError(t, out.FetchErr)
	assert.True(t, out.Complete())
}

func TestPrepareSaveFailureKeepsDataset(t *testing.T) {
	c := &failingCache{status: store.Absent("no cache file")}
	f := &fakeFetcher{result: fetch.Result{Records: records(), Complete: true}}

	out := New(c, f, Options{Build: buildOpts}, zaptest.NewLogger(t)).Prepare(context.Background(), false)

	assert.Equal(t, 1, c.saves)
	assert.False(t, out.Saved)
	var ioErr *store.IOError
	assert.True(t, errors.As(out.SaveErr, &ioErr))
	assert.Len(t, out.Dataset.Records, 2)
	assert.Len(t, out.KB, 1)
}

type countingCache struct {
	*store.Store
	loads int
}

func (c *countingCache) Load() store.CacheStatus {
	c.loads++
	return c.Store.Load()
}

func TestPrepareForcedRefreshFailureKeepsCache(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(store.Dataset{Records: records(), Complete: true}))
	f := &fakeFetcher{result: fetch.Result{Err: errors.New("connection refused")}}

	out := New(s, f, Options{Build: buildOpts, PersistPartial: true}, zaptest.NewLogger(t)).Prepare(context.Background(), true)

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, Fetch, out.Action)
	assert.True(t, out.FromCache)
	assert.EqualError(t, out.FetchErr, "connection refused")
	assert.False(t, out.Saved)
	assert.True(t, out.Complete())
	assert.Len(t, out.Dataset.Records, 2)
	assert.Len(t, out.KB, 1)

	cached, ok := s.Load().Dataset()
	require.True(t, ok)
	assert.Len(t, cached.Records, 2)
}

func TestPrepareForcedRefreshKeepsLargerPartialFetch(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(store.Dataset{Records: records()[:1], Complete: false}))
	f := &fakeFetcher{result: fetch.Result{Records: records(), Err: errors.New("reset")}}

	out := New(s, f, Options{Build: buildOpts}, zaptest.NewLogger(t)).Prepare(context.Background(), true)

	assert.False(t, out.FromCache)
	assert.Len(t, out.Dataset.Records, 2)
	assert.Error(t, out.FetchErr)
}

func TestPrepareReadsArtifactOnce(t *testing.T) {
	c := &countingCache{Store: testStore(t)}
	require.NoError(t, c.Save(store.Dataset{Records: records(), Complete: true}))
	f := &fakeFetcher{result: fetch.Result{Err: errors.New("timeout")}}
	p := New(c, f, Options{Build: buildOpts}, zaptest.NewLogger(t))

	first := p.Prepare(context.Background(), false)
	refreshed := p.Prepare(context.Background(), true)
	again := p.Prepare(context.Background(), false)

	assert.Equal(t, 1, c.loads)
	assert.True(t, first.FromCache)
	assert.True(t, refreshed.FromCache)
	assert.Error(t, refreshed.FetchErr)
	assert.Equal(t, first.KB, refreshed.KB)
	assert.Equal(t, first.KB, again.KB)
	assert.Equal(t, 1, f.calls)
}

func TestPrepareRefreshUsesSavedDataset(t *testing.T) {
	c := &countingCache{Store: testStore(t)}
	f := &fakeFetcher{result: fetch.Result{Records: records(), Complete: true}}
	p := New(c, f, Options{Build: buildOpts}, zaptest.NewLogger(t))

	require.True(t, p.Prepare(context.Background(), false).Saved)
	f.result = fetch.Result{Err: errors.New("timeout")}
	out := p.Prepare(context.Background(), true)

	assert.Equal(t, 1, c.loads)
	assert.True(t, out.FromCache)
	assert.Len(t, out.Dataset.Records, 2)
}

// End to end against a simulated remote source.
func TestPrepareAgainstPagedServer(t *testing.T) {
	sizes := []int{2, 2, 1, 0}
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := sizes[served]
		served++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		results := make([]map[string]any, 0, size)
		for i := 0; i < size; i++ {
			subject := "Douanes"
			if (offset+i)%2 == 0 {
				subject = "TVA"
			}
			results = append(results, map[string]any{"fields": map[string]any{
				"dc_title":   fmt.Sprintf("Titre %d", offset+i),
				"dc_subject": subject,
			}})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	s := testStore(t)
	logger := zaptest.NewLogger(t)
	f := fetch.New(srv.Client(), store.DefaultFieldNames, logger)
	p := New(s, f, Options{Request: fetch.Request{Endpoint: srv.URL, PageSize: 2}, Build: buildOpts}, logger)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	out := p.Prepare(context.Background(), false)
	require.NoError(t, out.FetchErr)
	assert.Len(t, out.Dataset.Records, 5)
	assert.Len(t, out.KB, 3)
	assert.Equal(t, "Titre: Titre 0\nDescription: Description indisponible\nSujet: TVA", out.KB[0].Content)

	// second run is served from the cache
	again := p.Prepare(context.Background(), false)
	assert.True(t, again.FromCache)
	assert.Equal(t, out.KB, again.KB)
	assert.Equal(t, 4, served)
	assert.True(t, again.Dataset.FetchedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

type answerLog struct{ entries []history.Entry }

func (l *answerLog) RecordAnswer(e history.Entry) (history.Entry, error) {
	l.entries = append(l.entries, e)
	return e, nil
}

func TestAssistantAsk(t *testing.T) {
	engine := answer.EngineFunc(func(_ context.Context, q, c string) (string, error) {
		return "20 %", nil
	})
	base := kb.KnowledgeBase{{Title: "A", Content: "Titre: A"}}
	log := &answerLog{}
	a := NewAssistant(answer.New(engine), base, log, zaptest.NewLogger(t))

	reply, err := a.Ask(context.Background(), "Taux normal ?")
	require.NoError(t, err)
	assert.Equal(t, "20 %", reply.Text)
	assert.False(t, reply.Sentinel)

	reply, err = a.Ask(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, answer.InvalidQuestion, reply.Text)
	assert.True(t, reply.Sentinel)

	require.Len(t, log.entries, 2)
	assert.Equal(t, 1, log.entries[0].Entries)
	assert.True(t, log.entries[1].Sentinel)
	assert.Equal(t, 1, a.Entries())
}

func TestAssistantAskEngineError(t *testing.T) {
	engine := answer.EngineFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("timeout")
	})
	log := &answerLog{}
	a := NewAssistant(answer.New(engine), kb.KnowledgeBase{{Content: "x"}}, log, nil)

	_, err := a.Ask(context.Background(), "q")
	assert.Error(t, err)
	assert.Empty(t, log.entries)
}
