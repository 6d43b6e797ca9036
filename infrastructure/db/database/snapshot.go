package database

import (
	"sync"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/kaspanet/go-muhash"
	"github.com/puzpuzpuz/xsync/v3"
)

// snapshot is an immutable, versioned state of the database, as seen
// through a backend view.
type snapshot struct {
	view backend.View

	// digest is only ever read by the write transaction rooted at this
	// snapshot, which clones it. hash is its finalized form.
	digest *muhash.MuHash
	hash   muhash.Hash

	// refCount is guarded by the registry's mutex
	refCount int
}

func newSnapshot(view backend.View, digest *muhash.MuHash) *snapshot {
	return &snapshot{
		view:   view,
		digest: digest,
		hash:   digest.Clone().Finalize(),
	}
}

func (s *snapshot) version() uint64 {
	return s.view.Version()
}

// snapshotRegistry keeps track of the latest snapshot and of every older
// snapshot that is still referenced by a transaction. A snapshot's view is
// released as soon as it's neither latest nor referenced.
type snapshotRegistry struct {
	mutex    sync.Mutex
	latest   *snapshot
	isClosed bool

	// live holds every snapshot whose view is not yet released, by version
	live *xsync.MapOf[uint64, *snapshot]
}

func newSnapshotRegistry(latest *snapshot) *snapshotRegistry {
	registry := &snapshotRegistry{
		latest: latest,
		live:   xsync.NewMapOf[uint64, *snapshot](),
	}
	registry.live.Store(latest.version(), latest)
	return registry
}

// acquire returns the latest snapshot and references it. Every acquire
// must be matched by a release.
func (r *snapshotRegistry) acquire() *snapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.latest.refCount++
	return r.latest
}

func (r *snapshotRegistry) release(s *snapshot) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s.refCount--
	if s.refCount < 0 {
		panic("snapshot released more times than it was acquired")
	}
	if s.refCount == 0 && s != r.latest {
		r.free(s)
	}
}

// publish makes a new snapshot the latest one. The previous latest
// snapshot is freed if nothing references it.
func (r *snapshotRegistry) publish(s *snapshot) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous := r.latest
	r.latest = s
	r.live.Store(s.version(), s)
	if previous.refCount == 0 {
		r.free(previous)
	}
}

// free must be called with the mutex held.
func (r *snapshotRegistry) free(s *snapshot) {
	r.live.Delete(s.version())
	if r.isClosed {
		return
	}
	s.view.Release()
	log.Tracef("Freed snapshot of version %d", s.version())
}

func (r *snapshotRegistry) latestSnapshot() *snapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.latest
}

// liveCount returns the number of snapshots that are held in memory.
func (r *snapshotRegistry) liveCount() int {
	return r.live.Size()
}

// isLive returns whether the snapshot of the given version is held in
// memory.
func (r *snapshotRegistry) isLive(version uint64) bool {
	_, ok := r.live.Load(version)
	return ok
}

// close releases the views of all live snapshots. Transactions still
// holding a snapshot can no longer read through it.
func (r *snapshotRegistry) close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.live.Range(func(version uint64, s *snapshot) bool {
		s.view.Release()
		return true
	})
	r.isClosed = true
}
