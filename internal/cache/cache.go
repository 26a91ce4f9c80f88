// Package cache is the three-tier content-addressed artifact cache. L0 is
// a lock-free sharded sync.Map; L1 is a bounded adaptive (two-queue)
// cache; L2 is a content-addressed on-disk directory written
// asynchronously.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/standardbeagle/codegraph-core/internal/config"
	"github.com/standardbeagle/codegraph-core/internal/errs"
	"github.com/standardbeagle/codegraph-core/internal/idcodec"
	"github.com/standardbeagle/codegraph-core/internal/obslog"
	"github.com/standardbeagle/codegraph-core/internal/types"
)

const l0Shards = 16

// Stats counts hits and misses per tier, updated atomically.
type Stats struct {
	L0Hits, L1Hits, L2Hits, Misses int64
	Corruptions                    int64
}

// Tiered is the three-tier cache. Every artifact is keyed by
// (artifact-kind, subject-id, fingerprint, stage-config-hash); the payload
// is the artifact's canonical encoding, so equality is by value.
type Tiered struct {
	cfg config.Cache

	// L0: sharded by xxhash of the key so write contention spreads across
	// independent sync.Maps.
	l0 [l0Shards]sync.Map

	l1 *lru.TwoQueueCache[string, []byte]

	l2dir string
	// l2queue serializes async L2 writes; readers never wait on it.
	l2queue chan l2write
	l2wg    sync.WaitGroup
	closed  atomic.Bool

	stats Stats
}

type l2write struct {
	key     string
	payload []byte
}

// New builds a Tiered cache from the cache section of the configuration.
// Disabled tiers simply never hit.
func New(cfg config.Cache) (*Tiered, error) {
	t := &Tiered{cfg: cfg}

	if cfg.L1.Enabled {
		size := int(cfg.L1.MaxSize)
		if size <= 0 {
			size = 50000
		}
		l1, err := lru.New2Q[string, []byte](size)
		if err != nil {
			return nil, fmt.Errorf("cache: l1 init: %w", err)
		}
		t.l1 = l1
	}

	if cfg.L2.Enabled {
		dir := cfg.L2.Path
		if dir == "" {
			dir = ".codegraph/cache"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: l2 dir: %w", err)
		}
		t.l2dir = dir
		t.l2queue = make(chan l2write, 256)
		t.l2wg.Add(1)
		go t.l2writer()
	}

	return t, nil
}

// KeyString flattens a CacheKey into the canonical string every tier keys
// on.
func KeyString(k types.CacheKey) string {
	return k.ArtifactKind + "\x00" + k.SubjectID + "\x00" + k.Fingerprint + "\x00" + k.StageConfig
}

func shardFor(key string) uint64 {
	return xxhash.Sum64String(key) % l0Shards
}

// Put records payload under key in L0 and L1 synchronously; L2 is written
// asynchronously.
func (t *Tiered) Put(key types.CacheKey, payload []byte) {
	ks := KeyString(key)
	if t.cfg.L0.Enabled {
		t.l0[shardFor(ks)].Store(ks, payload)
	}
	if t.l1 != nil {
		t.l1.Add(ks, payload)
	}
	if t.l2queue != nil && !t.closed.Load() {
		select {
		case t.l2queue <- l2write{key: ks, payload: payload}:
		default:
			// Queue full: drop the L2 write. Readers tolerate a miss and
			// recompute; losing an async write is never a correctness
			// problem.
		}
	}
}

// Get looks key up tier by tier, promoting hits into the faster tiers. A
// miss returns a KindCacheMiss error; a corrupted L2 entry is quarantined
// and reported as a miss.
func (t *Tiered) Get(key types.CacheKey) ([]byte, error) {
	ks := KeyString(key)

	if t.cfg.L0.Enabled {
		if v, ok := t.l0[shardFor(ks)].Load(ks); ok {
			atomic.AddInt64(&t.stats.L0Hits, 1)
			return v.([]byte), nil
		}
	}
	if t.l1 != nil {
		if v, ok := t.l1.Get(ks); ok {
			atomic.AddInt64(&t.stats.L1Hits, 1)
			if t.cfg.L0.Enabled {
				t.l0[shardFor(ks)].Store(ks, v)
			}
			return v, nil
		}
	}
	if t.l2dir != "" {
		payload, err := t.l2read(ks)
		if err == nil {
			atomic.AddInt64(&t.stats.L2Hits, 1)
			if t.cfg.L0.Enabled {
				t.l0[shardFor(ks)].Store(ks, payload)
			}
			if t.l1 != nil {
				t.l1.Add(ks, payload)
			}
			return payload, nil
		}
		var stageErr *errs.StageError
		if errors.As(err, &stageErr) && stageErr.Kind == errs.KindCacheCorruption {
			atomic.AddInt64(&t.stats.Corruptions, 1)
		}
	}

	atomic.AddInt64(&t.stats.Misses, 1)
	return nil, errs.NewCacheMiss(key.SubjectID)
}

// Invalidate drops key from every tier. The L2 file is removed
// synchronously so a stale artifact can't resurface after a rebuild.
func (t *Tiered) Invalidate(key types.CacheKey) {
	ks := KeyString(key)
	t.l0[shardFor(ks)].Delete(ks)
	if t.l1 != nil {
		t.l1.Remove(ks)
	}
	if t.l2dir != "" {
		os.Remove(t.l2path(ks))
	}
}

// Snapshot returns a copy of the tier counters.
func (t *Tiered) Snapshot() Stats {
	return Stats{
		L0Hits:      atomic.LoadInt64(&t.stats.L0Hits),
		L1Hits:      atomic.LoadInt64(&t.stats.L1Hits),
		L2Hits:      atomic.LoadInt64(&t.stats.L2Hits),
		Misses:      atomic.LoadInt64(&t.stats.Misses),
		Corruptions: atomic.LoadInt64(&t.stats.Corruptions),
	}
}

// Close drains the async L2 writer. Pending writes complete; new Puts after
// Close skip L2.
func (t *Tiered) Close() {
	if t.closed.Swap(true) {
		return
	}
	if t.l2queue != nil {
		close(t.l2queue)
		t.l2wg.Wait()
	}
}

// l2path content-addresses the key: the file name is the xxhash of the key
// string, fanned out over 256 prefix directories to keep directory sizes
// bounded.
func (t *Tiered) l2path(ks string) string {
	h := fmt.Sprintf("%016x", xxhash.Sum64String(ks))
	return filepath.Join(t.l2dir, h[:2], h)
}

// l2entry wraps the payload with its own content hash so corruption is
// detectable on read.
type l2entry struct {
	Key      string `json:"key"`
	Checksum string `json:"checksum"`
	Payload  []byte `json:"payload"`
}

func (t *Tiered) l2writer() {
	defer t.l2wg.Done()
	for w := range t.l2queue {
		entry := l2entry{Key: w.key, Checksum: idcodec.ContentHash(w.payload), Payload: w.payload}
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		path := t.l2path(w.key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			obslog.Warnf("cache", "l2 mkdir failed: %v", err)
			continue
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			obslog.Warnf("cache", "l2 write failed: %v", err)
			continue
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			obslog.Warnf("cache", "l2 rename failed: %v", err)
		}
	}
}

func (t *Tiered) l2read(ks string) ([]byte, error) {
	path := t.l2path(ks)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewCacheMiss(ks)
	}
	var entry l2entry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.quarantine(path)
		return nil, errs.NewCacheCorruption(ks, err)
	}
	if entry.Key != ks || idcodec.ContentHash(entry.Payload) != entry.Checksum {
		t.quarantine(path)
		return nil, errs.NewCacheCorruption(ks, fmt.Errorf("checksum mismatch"))
	}
	return entry.Payload, nil
}

// quarantine moves a corrupted entry aside instead of deleting it, so a
// recurring corruption source can be diagnosed from the quarantined files.
func (t *Tiered) quarantine(path string) {
	qdir := filepath.Join(t.l2dir, "quarantine")
	if err := os.MkdirAll(qdir, 0o755); err != nil {
		os.Remove(path)
		return
	}
	if err := os.Rename(path, filepath.Join(qdir, filepath.Base(path))); err != nil {
		os.Remove(path)
	}
}
