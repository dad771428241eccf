// Package journal provides crash-safe append-only JSONL logs for the
// pipeline's durable outputs: the accepted-results log, the reject log and
// the originality fingerprint log. Records are appended as single
// fsynced lines so a reader never observes a partial record, and logs can
// be compacted to their tail with an atomic file swap.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Log is an append-only JSONL file. All methods are safe for concurrent
// use; appends are serialized by a single writer lock.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
	seq  int64 // number of records in the file
}

// OpenLog opens (or creates) the log at path and counts existing records
// so sequence numbers stay stable across restarts.
func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	seq, err := countLines(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Log{path: path, file: f, seq: seq}, nil
}

// Append marshals v to a single JSON line, writes it and fsyncs. It
// returns the zero-based sequence number of the appended record.
func (l *Log) Append(v interface{}) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal record: %w", err)
	}
	if bytes.ContainsRune(data, '\n') {
		return 0, fmt.Errorf("record marshals to multiple lines")
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return 0, fmt.Errorf("log %s is closed", l.path)
	}
	if _, err := l.file.Write(data); err != nil {
		return 0, fmt.Errorf("append to %s: %w", l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", l.path, err)
	}
	seq := l.seq
	l.seq++
	return seq, nil
}

// Len returns the number of records currently in the log.
func (l *Log) Len() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// ReadAll decodes every record in the log. Lines that fail to decode are
// skipped: an interrupted write can only ever damage the final line, and
// Append never exposes one to readers anyway.
func (l *Log) ReadAll(decode func(line []byte) error) error {
	l.mu.Lock()
	path := l.path
	l.mu.Unlock()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			continue
		}
	}
	return sc.Err()
}

// Compact rewrites the log keeping only the last keep records, swapping
// the truncated replacement in atomically. Sequence numbers restart from
// the surviving record count.
func (l *Log) Compact(keep int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seq <= keep {
		return nil
	}

	var lines [][]byte
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("open log for compaction: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
		if int64(len(lines)) > keep {
			lines = lines[1:]
		}
	}
	f.Close()
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan log for compaction: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".compact-*")
	if err != nil {
		return fmt.Errorf("create compaction temp: %w", err)
	}
	tmpPath := tmp.Name()
	for _, line := range lines {
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write compaction temp: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync compaction temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if l.file != nil {
		l.file.Close()
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("swap compacted log: %w", err)
	}
	nf, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("reopen compacted log: %w", err)
	}
	l.file = nf
	l.seq = int64(len(lines))
	return nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
