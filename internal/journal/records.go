package journal

import (
	"encoding/json"
	"time"

	"copyforge/internal/deck"
)

// AcceptedRecord is one fully validated copy deck, appended exactly once
// per item that reaches Done.
type AcceptedRecord struct {
	ItemID    string    `json:"item_id"`
	Sections  deck.Deck `json:"sections"`
	TierUsed  string    `json:"tier_used"`
	Timestamp time.Time `json:"timestamp"`
}

// RejectRecord is one terminal rejection with its bucketed code.
type RejectRecord struct {
	ItemID    string    `json:"item_id"`
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AcceptedLog is the typed accepted-results log.
type AcceptedLog struct{ *Log }

// OpenAccepted opens the accepted-results log at path.
func OpenAccepted(path string) (*AcceptedLog, error) {
	l, err := OpenLog(path)
	if err != nil {
		return nil, err
	}
	return &AcceptedLog{l}, nil
}

// Append writes the record and returns its sequence number, which the
// checkpoint store records to keep the two files reconcilable.
func (a *AcceptedLog) Append(rec AcceptedRecord) (int64, error) {
	return a.Log.Append(rec)
}

// ReadAll returns every accepted record in append order.
func (a *AcceptedLog) ReadAll() ([]AcceptedRecord, error) {
	var out []AcceptedRecord
	err := a.Log.ReadAll(func(line []byte) error {
		var rec AcceptedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// RejectLog is the typed reject log.
type RejectLog struct{ *Log }

// OpenRejects opens the reject log at path.
func OpenRejects(path string) (*RejectLog, error) {
	l, err := OpenLog(path)
	if err != nil {
		return nil, err
	}
	return &RejectLog{l}, nil
}

// Append writes a reject record, stamping the time if unset.
func (r *RejectLog) Append(rec RejectRecord) (int64, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return r.Log.Append(rec)
}

// ReadAll returns every reject record in append order.
func (r *RejectLog) ReadAll() ([]RejectRecord, error) {
	var out []RejectRecord
	err := r.Log.ReadAll(func(line []byte) error {
		var rec RejectRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
