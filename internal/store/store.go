// Package store implements the in-memory record store (spec §4.3): CDMs,
// objects, and maneuvers, with freshness-gated upserts, withdrawal, and
// retention GC. Grounded on the teacher's types.Storage/InMemoryStateMachine
// pair (a Set/Get key-value abstraction behind a state machine), generalized
// here into three typed maps behind one RWMutex so readers and the single
// writer never interleave mid-operation (spec §4.3 atomicity, §5 "no
// operation holds a store lock across a suspension point").
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// Result is the outcome of an upsert, used by the routing engine to decide
// whether to forward (spec §4.5 step 5).
type Result string

const (
	ResultCreated   Result = "created"
	ResultUpdated   Result = "updated"
	ResultStale     Result = "stale"
	ResultWithdrawn Result = "withdrawn"
	ResultConflict  Result = "conflict"
)

// Retention configures the GC sweeper (spec §3 Lifecycles, §6 storage.cleanup).
type Retention struct {
	CDMRetention    time.Duration
	ObjectRetention time.Duration
	GraceWindow     time.Duration
}

// DefaultRetention matches spec §6 defaults (168h/720h CDM/object retention).
func DefaultRetention() Retention {
	return Retention{
		CDMRetention:    168 * time.Hour,
		ObjectRetention: 720 * time.Hour,
		GraceWindow:     1 * time.Hour,
	}
}

// ListFilter narrows List* queries (spec §6 query surface).
type ListFilter struct {
	ObjectID       string
	MinProbability float64
	Limit          int
	Offset         int
}

// Store is the node's single in-memory (or file-backed, see filejournal.go)
// record store.
type Store struct {
	mu sync.RWMutex

	cdms      map[string]model.CDM
	objects   map[string]model.Object
	maneuvers map[string]model.Maneuver

	retention Retention
	journal   Journal // nil for pure in-memory storage
}

// New constructs an empty store. journal may be nil (memory-only).
func New(retention Retention, journal Journal) *Store {
	return &Store{
		cdms:      make(map[string]model.CDM),
		objects:   make(map[string]model.Object),
		maneuvers: make(map[string]model.Maneuver),
		retention: retention,
		journal:   journal,
	}
}

// UpsertObject applies the freshness rule: succeeds only if the incoming
// epoch is strictly greater than the stored epoch (spec §4.3, §3).
func (s *Store) UpsertObject(obj model.Object) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.objects[obj.ObjectID]
	if ok && !obj.State.Epoch.After(existing.State.Epoch) {
		return ResultStale
	}

	s.objects[obj.ObjectID] = obj
	s.appendJournal(journalEntry{Kind: journalObject, Object: &obj})
	if ok {
		return ResultUpdated
	}
	return ResultCreated
}

// UpsertCDM applies the freshness rule for CDMs: incoming creation_date
// must be >= the stored creation_date (spec §4.3, §3).
//
// Edge cases per spec §4.5: two ANNOUNCEs with equal creation_date but
// different content is first-writer-wins (ResultConflict for the later
// one). A withdrawn record whose withdrawal predates the incoming
// creation_date is cleared by a strictly newer announce (spec §8 property 5).
func (s *Store) UpsertCDM(cdm model.CDM) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cdms[cdm.CDMID]
	if !ok {
		cdm.Withdrawn = false
		s.cdms[cdm.CDMID] = cdm
		s.appendJournal(journalEntry{Kind: journalCDM, CDM: &cdm})
		return ResultCreated
	}

	if cdm.CreationDate.Before(existing.CreationDate) {
		return ResultStale
	}

	if cdm.CreationDate.Equal(existing.CreationDate) {
		if existing.Withdrawn {
			// Simultaneous WITHDRAW/ANNOUNCE tie-break: WITHDRAW wins (spec §4.5).
			return ResultStale
		}
		if !sameCDMContent(existing, cdm) {
			return ResultConflict
		}
		return ResultStale
	}

	// Strictly newer: clears any withdrawal and becomes current.
	cdm.Withdrawn = false
	s.cdms[cdm.CDMID] = cdm
	s.appendJournal(journalEntry{Kind: journalCDM, CDM: &cdm})
	return ResultUpdated
}

func sameCDMContent(a, b model.CDM) bool {
	return a.Object1.ObjectID == b.Object1.ObjectID &&
		a.Object2.ObjectID == b.Object2.ObjectID &&
		a.MissDistanceM == b.MissDistanceM &&
		a.CollisionProbability == b.CollisionProbability
}

// WithdrawCDM marks a CDM withdrawn. Withdrawing an unknown id succeeds
// idempotently, recording the intent so a late ANNOUNCE is suppressed
// (spec §4.3 "Withdrawal").
func (s *Store) WithdrawCDM(cdmID string, effectiveTime time.Time, reason model.WithdrawReason) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	withdrawnAt := effectiveTime.UTC()
	if effectiveTime.IsZero() {
		withdrawnAt = time.Now().UTC()
	}

	existing, ok := s.cdms[cdmID]
	if !ok {
		// Record a tombstone: a bare marker with no body, so a later
		// ANNOUNCE with an older or equal creation_date is rejected. This
		// is new information to this node, so it still counts and still
		// forwards, unlike a repeat of an already-withdrawn record below.
		s.cdms[cdmID] = model.CDM{
			CDMID:          cdmID,
			CreationDate:   effectiveTime,
			Withdrawn:      true,
			WithdrawReason: reason,
			WithdrawnAt:    withdrawnAt,
		}
		return ResultWithdrawn
	}

	if existing.Withdrawn {
		// Already withdrawn: a repeat WITHDRAW is a no-op, not forwarded
		// and not counted again.
		return ResultStale
	}

	existing.Withdrawn = true
	existing.WithdrawReason = reason
	existing.WithdrawnAt = withdrawnAt
	if effectiveTime.After(existing.CreationDate) {
		existing.CreationDate = effectiveTime
	}
	s.cdms[cdmID] = existing
	s.appendJournal(journalEntry{Kind: journalCDMWithdraw, CDM: &existing})
	return ResultWithdrawn
}

// WithdrawObject marks an object withdrawn, recording a tombstone for an
// unknown id. Unlike WithdrawCDM it returns ResultWithdrawn for a repeat
// withdrawal too, stamps WithdrawnAt with the current time rather than
// effectiveTime, and journals only withdrawals of known objects.
func (s *Store) WithdrawObject(objectID string, effectiveTime time.Time, reason model.WithdrawReason) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.objects[objectID]
	if !ok {
		s.objects[objectID] = model.Object{
			ObjectID:       objectID,
			Withdrawn:      true,
			WithdrawReason: reason,
			WithdrawnAt:    time.Now().UTC(),
		}
		return ResultWithdrawn
	}

	existing.Withdrawn = true
	existing.WithdrawReason = reason
	existing.WithdrawnAt = time.Now().UTC()
	s.objects[objectID] = existing
	s.appendJournal(journalEntry{Kind: journalObjectWithdraw, Object: &existing})
	return ResultWithdrawn
}

// UpsertManeuver enforces monotonic status transitions (spec §3).
func (s *Store) UpsertManeuver(m model.Maneuver) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.maneuvers[m.ManeuverID]
	if !ok {
		s.maneuvers[m.ManeuverID] = m
		s.appendJournal(journalEntry{Kind: journalManeuver, Maneuver: &m})
		return ResultCreated
	}

	if !model.CanTransition(existing.Status, m.Status) {
		return ResultStale
	}

	s.maneuvers[m.ManeuverID] = m
	s.appendJournal(journalEntry{Kind: journalManeuver, Maneuver: &m})
	return ResultUpdated
}

// GetCDM returns a copy of the stored CDM and whether it exists.
func (s *Store) GetCDM(id string) (model.CDM, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cdms[id]
	return c, ok
}

// GetObject returns a copy of the stored object and whether it exists.
func (s *Store) GetObject(id string) (model.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[id]
	return o, ok
}

// GetManeuver returns a copy of the stored maneuver and whether it exists.
func (s *Store) GetManeuver(id string) (model.Maneuver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.maneuvers[id]
	return m, ok
}

// ListCDMs returns CDMs matching the filter, newest creation_date first.
func (s *Store) ListCDMs(filter ListFilter) ([]model.CDM, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.CDM, 0, len(s.cdms))
	for _, c := range s.cdms {
		if c.Withdrawn {
			continue
		}
		if filter.ObjectID != "" && c.Object1.ObjectID != filter.ObjectID && c.Object2.ObjectID != filter.ObjectID {
			continue
		}
		if filter.MinProbability > 0 && c.CollisionProbability < filter.MinProbability {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreationDate.After(matched[j].CreationDate)
	})
	total := len(matched)
	return paginate(matched, filter.Limit, filter.Offset), total
}

// ListObjects returns tracked (non-withdrawn) objects.
func (s *Store) ListObjects(filter ListFilter) ([]model.Object, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.Object, 0, len(s.objects))
	for _, o := range s.objects {
		if o.Withdrawn {
			continue
		}
		matched = append(matched, o)
	}
	total := len(matched)
	return paginate(matched, filter.Limit, filter.Offset), total
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ValidRecordRef identifies one tracked record, valid or withdrawn, for the
// routing engine's re-announce sweep (spec §4.5).
type ValidRecordRef struct {
	CDM      *model.CDM
	Object   *model.Object
	Maneuver *model.Maneuver
}

// SnapshotForSweep returns every record the re-announce sweep must replay:
// all non-GC'd records, valid or withdrawn (spec §9 Open Question (a): YES,
// withdrawn-but-tracked records are included so a reconnected peer learns
// the withdrawal).
func (s *Store) SnapshotForSweep() []ValidRecordRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]ValidRecordRef, 0, len(s.cdms)+len(s.objects)+len(s.maneuvers))
	for _, c := range s.cdms {
		c := c
		refs = append(refs, ValidRecordRef{CDM: &c})
	}
	for _, o := range s.objects {
		o := o
		refs = append(refs, ValidRecordRef{Object: &o})
	}
	for _, m := range s.maneuvers {
		m := m
		refs = append(refs, ValidRecordRef{Maneuver: &m})
	}
	return refs
}

// GC removes withdrawn+grace-expired records and records past retention
// (spec §3 Lifecycles, §4.3 "Retention").
func (s *Store) GC(now time.Time) (removedCDMs, removedObjects int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.cdms {
		if c.Withdrawn && now.Sub(c.WithdrawnAt) > s.retention.GraceWindow {
			delete(s.cdms, id)
			removedCDMs++
			continue
		}
		if !c.Withdrawn && s.retention.CDMRetention > 0 && now.Sub(c.CreationDate) > s.retention.CDMRetention {
			delete(s.cdms, id)
			removedCDMs++
		}
	}

	for id, o := range s.objects {
		if o.Withdrawn && now.Sub(o.WithdrawnAt) > s.retention.GraceWindow {
			delete(s.objects, id)
			removedObjects++
			continue
		}
		if !o.Withdrawn && s.retention.ObjectRetention > 0 && now.Sub(o.State.Epoch) > s.retention.ObjectRetention {
			delete(s.objects, id)
			removedObjects++
		}
	}
	return removedCDMs, removedObjects
}

// AttachJournal installs the write-side journal after a file-backed store
// has been rebuilt via Recover, so subsequent mutations are persisted too.
func (s *Store) AttachJournal(j Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
}

func (s *Store) appendJournal(e journalEntry) {
	if s.journal == nil {
		return
	}
	_ = s.journal.Append(e)
}
