// Package pipeline wires the local store, the fetcher and the knowledge
// base builder into one run: load the cache, fetch on a miss, persist, build.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/fetch"
	"github.com/Mickaeljc/app-bofip/internal/history"
	"github.com/Mickaeljc/app-bofip/internal/kb"
	"github.com/Mickaeljc/app-bofip/internal/store"
	"go.uber.org/zap"
)

type Action int

const (
	UseCache Action = iota
	Fetch
)

func (a Action) String() string {
	if a == Fetch {
		return "fetch"
	}
	return "use-cache"
}

// Decide picks what to do with a cache status. It has no side effects.
func Decide(status store.CacheStatus, forceRefresh bool) Action {
	if forceRefresh || !status.Fresh() {
		return Fetch
	}
	return UseCache
}

// Cache is the local snapshot store.
type Cache interface {
	Load() store.CacheStatus
	Save(store.Dataset) error
}

// Fetcher runs a full paginated sync.
type Fetcher interface {
	FetchAll(ctx context.Context, req fetch.Request) fetch.Result
}

// SyncRecorder keeps a log of syncs. Optional.
type SyncRecorder interface {
	RecordSync(history.Sync) error
}

type Options struct {
	Request fetch.Request
	Build   kb.Options
	// PersistPartial saves datasets from syncs that stopped early. They are
	// always used in memory.
	PersistPartial bool
}

// Outcome is the state after one run. FetchErr is set when a sync stopped
// early; SaveErr when the dataset could not be persisted. Neither discards
// the records in hand.
type Outcome struct {
	KB        kb.KnowledgeBase
	Dataset   store.Dataset
	Action    Action
	FromCache bool
	Saved     bool
	FetchErr  error
	SaveErr   error
}

func (o Outcome) Complete() bool { return o.Dataset.Complete }

type Pipeline struct {
	cache    Cache
	fetcher  Fetcher
	recorder SyncRecorder
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
	// disk mirrors the artifact after the first Load, so later runs in the
	// same process do not read it again.
	disk   store.CacheStatus
	loaded bool
}

func New(cache Cache, fetcher Fetcher, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cache: cache, fetcher: fetcher, opts: opts, logger: logger, now: time.Now}
}

// WithRecorder logs every sync to r.
func (p *Pipeline) WithRecorder(r SyncRecorder) *Pipeline {
	p.recorder = r
	return p
}

// Prepare loads or fetches the dataset and builds the knowledge base.
// The artifact is read at most once per Pipeline and written at most once
// per call. A forced refresh that fails keeps the cached dataset when it is
// the better of the two; FetchErr still reports the failure.
func (p *Pipeline) Prepare(ctx context.Context, forceRefresh bool) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := p.cacheStatus()
	action := Decide(status, forceRefresh)
	p.logger.Debug("cache decision", zap.Bool("fresh", status.Fresh()), zap.String("reason", status.Reason), zap.Stringer("action", action))

	var out Outcome
	out.Action = action
	if action == UseCache {
		ds, _ := status.Dataset()
		out.Dataset = ds
		out.FromCache = true
		if !ds.Complete {
			p.logger.Warn("cached dataset is partial", zap.Int("records", ds.Len()))
		}
	} else {
		fetched, err := p.sync(ctx)
		out.FetchErr = err
		if cached, ok := status.Dataset(); ok && err != nil && preferCached(cached, fetched) {
			p.logger.Warn("refresh failed, keeping cached dataset",
				zap.Int("cached", cached.Len()), zap.Int("fetched", fetched.Len()), zap.Error(err))
			out.Dataset = cached
			out.FromCache = true
		} else {
			out.Dataset = fetched
			out.Saved, out.SaveErr = p.persist(fetched)
		}
	}

	out.KB = kb.Build(out.Dataset, p.opts.Build)
	p.logger.Info("knowledge base ready",
		zap.Int("records", out.Dataset.Len()),
		zap.Int("entries", out.KB.Len()),
		zap.Bool("complete", out.Dataset.Complete),
		zap.Bool("from_cache", out.FromCache),
	)
	return out
}

func (p *Pipeline) cacheStatus() store.CacheStatus {
	if !p.loaded {
		p.disk = p.cache.Load()
		p.loaded = true
	}
	return p.disk
}

// preferCached reports whether a cached dataset beats the result of a failed
// sync.
func preferCached(cached, fetched store.Dataset) bool {
	return cached.Complete || cached.Len() >= fetched.Len()
}

func (p *Pipeline) sync(ctx context.Context) (store.Dataset, error) {
	req := p.opts.Request
	res := p.fetcher.FetchAll(ctx, req)
	ds := res.Dataset(req.Endpoint, p.now())

	if p.recorder != nil {
		s := history.Sync{Source: req.Endpoint, Records: len(res.Records), Complete: res.Complete, SyncedAt: ds.FetchedAt}
		if res.Err != nil {
			s.Error = res.Err.Error()
		}
		if err := p.recorder.RecordSync(s); err != nil {
			p.logger.Warn("recording sync failed", zap.Error(err))
		}
	}
	return ds, res.Err
}

func (p *Pipeline) persist(ds store.Dataset) (bool, error) {
	if !ds.Complete {
		if !p.opts.PersistPartial || ds.Len() == 0 {
			p.logger.Warn("partial dataset not cached", zap.Int("records", ds.Len()))
			return false, nil
		}
	}
	if err := p.cache.Save(ds); err != nil {
		p.logger.Error("saving dataset failed", zap.Error(err))
		return false, err
	}
	p.disk = store.Fresh(ds)
	p.loaded = true
	return true, nil
}
