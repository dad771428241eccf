package originality

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"copyforge/internal/config"
	"copyforge/internal/journal"
)

// Fingerprint is one item's shingle signature as persisted in the log.
type Fingerprint struct {
	ItemID    string    `json:"item_id"`
	Shingles  []string  `json:"shingles"`
	Timestamp time.Time `json:"timestamp"`
}

type windowEntry struct {
	itemID   string
	shingles map[string]struct{}
}

// Guard owns the rolling fingerprint window and its persistence. Reads
// (Check) may run concurrently; window mutation and the log append are
// serialized under the write lock so no fingerprint is ever missed or
// interleaved.
type Guard struct {
	mu     sync.RWMutex
	window []windowEntry // oldest first, bounded by cfg.WindowSize
	log    *journal.Log
	cfg    config.OriginalityConfig
	zlog   *zap.Logger
}

// Open builds the guard, reloading the persisted log tail so originality
// guarantees survive restarts.
func Open(path string, cfg config.OriginalityConfig, zlog *zap.Logger) (*Guard, error) {
	l, err := journal.OpenLog(path)
	if err != nil {
		return nil, fmt.Errorf("open fingerprint log: %w", err)
	}

	g := &Guard{log: l, cfg: cfg, zlog: zlog}

	// Reload the tail: read everything, keep the last ReloadTail
	// entries, and hold the newest WindowSize resident.
	var tail []Fingerprint
	err = l.ReadAll(func(line []byte) error {
		var fp Fingerprint
		if err := json.Unmarshal(line, &fp); err != nil {
			return err
		}
		tail = append(tail, fp)
		if len(tail) > cfg.ReloadTail {
			tail = tail[1:]
		}
		return nil
	})
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("reload fingerprint log: %w", err)
	}

	start := 0
	if len(tail) > cfg.WindowSize {
		start = len(tail) - cfg.WindowSize
	}
	for _, fp := range tail[start:] {
		set := make(map[string]struct{}, len(fp.Shingles))
		for _, s := range fp.Shingles {
			set[s] = struct{}{}
		}
		g.window = append(g.window, windowEntry{itemID: fp.ItemID, shingles: set})
	}

	zlog.Info("originality guard loaded",
		zap.Int("window", len(g.window)),
		zap.Int64("log_entries", l.Len()))
	return g, nil
}

// Check computes the highest Jaccard similarity between text's shingles
// and any fingerprint in the window. The boolean reports whether the
// similarity threshold was reached, which forces a rewrite.
func (g *Guard) Check(text string) (similarity float64, tooSimilar bool) {
	shingles := Shingles(text, g.cfg.ShingleSize)

	g.mu.RLock()
	defer g.mu.RUnlock()
	max := 0.0
	for _, entry := range g.window {
		if sim := Jaccard(shingles, entry.shingles); sim > max {
			max = sim
		}
	}
	return max, max >= g.cfg.SimilarityThreshold
}

// Commit records an accepted item's fingerprint: appended to the
// persistent log and pushed into the window, rotating the log once it
// exceeds the ceiling.
func (g *Guard) Commit(itemID, text string) error {
	shingles := Shingles(text, g.cfg.ShingleSize)
	list := make([]string, 0, len(shingles))
	for s := range shingles {
		list = append(list, s)
	}
	fp := Fingerprint{ItemID: itemID, Shingles: list, Timestamp: time.Now().UTC()}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := g.log.Append(fp); err != nil {
		return fmt.Errorf("append fingerprint: %w", err)
	}
	g.window = append(g.window, windowEntry{itemID: itemID, shingles: shingles})
	if len(g.window) > g.cfg.WindowSize {
		g.window = g.window[1:]
	}

	if g.log.Len() > int64(g.cfg.RotateAbove) {
		g.zlog.Info("rotating fingerprint log",
			zap.Int64("entries", g.log.Len()),
			zap.Int("keep", g.cfg.ReloadTail))
		if err := g.log.Compact(int64(g.cfg.ReloadTail)); err != nil {
			return fmt.Errorf("rotate fingerprint log: %w", err)
		}
	}
	return nil
}

// EnsureCommitted commits a fingerprint only when the item is not
// already resident, replaying accepted work whose fingerprint append was
// lost to a crash between the checkpoint mark and the log write. Runs
// call it during startup recovery, before workers start.
func (g *Guard) EnsureCommitted(itemID, text string) error {
	g.mu.RLock()
	for _, entry := range g.window {
		if entry.itemID == itemID {
			g.mu.RUnlock()
			return nil
		}
	}
	g.mu.RUnlock()

	g.zlog.Info("replaying missing fingerprint", zap.String("item", itemID))
	return g.Commit(itemID, text)
}

// WindowSize returns the resident window length, for stats output.
func (g *Guard) WindowSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.window)
}

// Close releases the underlying log.
func (g *Guard) Close() error { return g.log.Close() }
