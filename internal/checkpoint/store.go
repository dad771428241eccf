// Package checkpoint persists the durable per-item pipeline state. Every
// mutation rewrites the state file atomically (temp file, fsync, rename)
// so a crash can never leave a torn checkpoint, and in-flight leases are
// reclaimed on startup once they expire.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"copyforge/internal/journal"
)

// State is an item's lifecycle position.
type State string

const (
	StatePending  State = "pending"
	StateInFlight State = "in_flight"
	StateDone     State = "done"
	StateRejected State = "rejected"
)

// Entry is the durable record for one item.
type Entry struct {
	State         State        `json:"state"`
	LeaseOwner    string       `json:"lease_owner,omitempty"`
	LeaseExpiry   time.Time    `json:"lease_expiry,omitempty"`
	RetryCount    int          `json:"retry_count,omitempty"`
	LastErrorCode journal.Code `json:"last_error_code,omitempty"`
	// AcceptedSeq is the accepted-log sequence number recorded at
	// MarkDone, keeping the log and the store reconcilable.
	AcceptedSeq *int64 `json:"accepted_seq,omitempty"`
}

type stateFile struct {
	Version int              `json:"version"`
	Items   map[string]Entry `json:"items"`
}

// Options configures a store.
type Options struct {
	LeaseTimeout time.Duration
	// Override lets Done/Rejected items be claimed again. Only
	// targeted recovery passes set it.
	Override bool
	// RunID identifies this run as the lease owner.
	RunID string
}

// Store owns the checkpoint file. All methods are safe for concurrent
// use by pool workers.
type Store struct {
	mu    sync.Mutex
	path  string
	items map[string]Entry
	opts  Options
	log   *zap.Logger
}

// Open loads (or creates) the checkpoint file and reclaims expired
// leases: an in-flight item whose lease has passed returns to pending.
func Open(path string, opts Options, log *zap.Logger) (*Store, error) {
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = 30 * time.Minute
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	s := &Store{
		path:  path,
		items: make(map[string]Entry),
		opts:  opts,
		log:   log,
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if err == nil {
		var sf stateFile
		if err := json.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
		}
		if sf.Items != nil {
			s.items = sf.Items
		}
	}

	reclaimed := 0
	now := time.Now()
	for id, e := range s.items {
		if e.State == StateInFlight && now.After(e.LeaseExpiry) {
			e.State = StatePending
			e.LeaseOwner = ""
			e.LeaseExpiry = time.Time{}
			s.items[id] = e
			reclaimed++
		}
	}
	if reclaimed > 0 {
		log.Info("reclaimed expired leases", zap.Int("count", reclaimed))
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Seed registers items not yet tracked as pending.
func (s *Store) Seed(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, id := range ids {
		if _, ok := s.items[id]; !ok {
			s.items[id] = Entry{State: StatePending}
			added++
		}
	}
	if added == 0 {
		return nil
	}
	s.log.Debug("seeded checkpoint", zap.Int("new_items", added))
	return s.saveLocked()
}

// Reconcile repairs the one crash window the two-file commit leaves: an
// accepted record appended right before the process died without its
// MarkDone. Such items are marked done against their log sequence so a
// rerun never generates (and appends) them twice.
func (s *Store) Reconcile(accepted []journal.AcceptedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for seq, rec := range accepted {
		e, ok := s.items[rec.ItemID]
		if !ok || e.State == StateDone {
			continue
		}
		seq64 := int64(seq)
		e.State = StateDone
		e.LeaseOwner = ""
		e.LeaseExpiry = time.Time{}
		e.AcceptedSeq = &seq64
		s.items[rec.ItemID] = e
		changed = true
		s.log.Warn("reconciled accepted record missing its checkpoint",
			zap.String("item", rec.ItemID), zap.Int("seq", seq))
	}
	if !changed {
		return nil
	}
	return s.saveLocked()
}

// Claim leases an item for this run. It returns false when the item is
// already terminal (without override), currently leased, or unknown.
func (s *Store) Claim(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return false, nil
	}
	switch e.State {
	case StateDone, StateRejected:
		if !s.opts.Override {
			return false, nil
		}
	case StateInFlight:
		if time.Now().Before(e.LeaseExpiry) {
			return false, nil
		}
	}

	e.State = StateInFlight
	e.LeaseOwner = s.opts.RunID
	e.LeaseExpiry = time.Now().Add(s.opts.LeaseTimeout)
	s.items[id] = e
	if err := s.saveLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// MarkDone finalizes an item after its accepted record was appended at
// the given log sequence.
func (s *Store) MarkDone(id string, acceptedSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.items[id]
	e.State = StateDone
	e.LeaseOwner = ""
	e.LeaseExpiry = time.Time{}
	e.LastErrorCode = ""
	e.AcceptedSeq = &acceptedSeq
	s.items[id] = e
	return s.saveLocked()
}

// MarkRejected finalizes an item with its bucketed error code.
func (s *Store) MarkRejected(id string, code journal.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.items[id]
	e.State = StateRejected
	e.LeaseOwner = ""
	e.LeaseExpiry = time.Time{}
	e.LastErrorCode = code
	s.items[id] = e
	return s.saveLocked()
}

// Release returns a claimed item to pending, used when a worker abandons
// it cleanly on shutdown.
func (s *Store) Release(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok || e.State != StateInFlight {
		return nil
	}
	e.State = StatePending
	e.LeaseOwner = ""
	e.LeaseExpiry = time.Time{}
	s.items[id] = e
	return s.saveLocked()
}

// IncRetry bumps and returns an item's retry count (recovery passes).
func (s *Store) IncRetry(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.items[id]
	e.RetryCount++
	s.items[id] = e
	return e.RetryCount, s.saveLocked()
}

// Get returns an item's entry.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	return e, ok
}

// Counts tallies entries per state.
func (s *Store) Counts() map[State]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[State]int, 4)
	for _, e := range s.items {
		out[e.State]++
	}
	return out
}

// Snapshot returns a copy of all entries, keyed by item id.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.items))
	for id, e := range s.items {
		out[id] = e
	}
	return out
}

// saveLocked writes the state file atomically: marshal to a temp file in
// the same directory, fsync, then rename over the live file.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(stateFile{Version: 1, Items: s.items}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync checkpoint temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("swap checkpoint: %w", err)
	}
	return nil
}
