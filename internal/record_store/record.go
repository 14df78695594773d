// Package record_store persists one JSON metadata file per utterance.
//
// Records are immutable after creation except for ResultingMessageID, which is
// written exactly once when the next record of the same thread is appended.
// Together PriorMessageID and ResultingMessageID form a doubly linked list per
// thread that the memory graph walks to rebuild exchanges.
package record_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
)

// ErrLinkAlreadySet is returned when a forward link is written a second time.
var ErrLinkAlreadySet = errors.New("resulting message id already set")

// ForwardLink is a write-once optional record ID.
type ForwardLink struct {
	id *int64
}

// LinkTo returns a link already pointing at id.
func LinkTo(id int64) ForwardLink {
	return ForwardLink{id: &id}
}

// Get returns the linked ID, ok=false when unset.
func (l ForwardLink) Get() (int64, bool) {
	if l.id == nil {
		return 0, false
	}
	return *l.id, true
}

// IsSet reports whether the link has been written.
func (l ForwardLink) IsSet() bool {
	return l.id != nil
}

// Set writes the link. A second call fails with ErrLinkAlreadySet.
func (l *ForwardLink) Set(id int64) error {
	if l.id != nil {
		return fmt.Errorf("%w (to %d)", ErrLinkAlreadySet, *l.id)
	}
	l.id = &id
	return nil
}

// MarshalJSON encodes an unset link as null.
func (l ForwardLink) MarshalJSON() ([]byte, error) {
	if l.id == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(*l.id, 10)), nil
}

// UnmarshalJSON accepts null or an integer.
func (l *ForwardLink) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		l.id = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	l.id = &id
	return nil
}

// MemoryRecord is one utterance. ID is also its key in the vector index.
type MemoryRecord struct {
	ID                 int64       `json:"id"`
	Speaker            string      `json:"speaker"`
	Message            string      `json:"message"`
	Time               time.Time   `json:"time"`
	Thread             string      `json:"thread,omitempty"`
	PriorMessageID     *int64      `json:"prior_message_id"`
	ResultingMessageID ForwardLink `json:"resulting_message_id"`
}

// wireRecord mirrors MemoryRecord with every field optional so decoding can
// tell a missing field from a present one.
type wireRecord struct {
	ID                 *int64           `json:"id"`
	Speaker            *string          `json:"speaker"`
	Message            *string          `json:"message"`
	Time               *string          `json:"time"`
	Thread             string           `json:"thread"`
	PriorMessageID     *int64           `json:"prior_message_id"`
	ResultingMessageID *json.RawMessage `json:"resulting_message_id"`
	// files written by the earlier recorder kept the reply pointer here
	MyResponse *int64 `json:"my_response"`
}

// legacy timestamps were naive ISO strings in UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func encodeRecord(rec *MemoryRecord) ([]byte, error) {
	out := *rec
	out.Time = rec.Time.UTC()
	return json.MarshalIndent(out, "", "  ")
}

// decodeRecord validates data against the record schema. Every failure
// matches memerrors.ErrCorruptRecord.
func decodeRecord(data []byte, wantID int64) (*MemoryRecord, error) {
	corrupt := func(err error) error {
		return memerrors.E(memerrors.KindCorruptRecord, fmt.Sprintf("decode record %d", wantID), err)
	}

	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, corrupt(err)
	}
	switch {
	case w.ID == nil:
		return nil, corrupt(errors.New("missing id"))
	case *w.ID != wantID:
		return nil, corrupt(fmt.Errorf("file holds id %d", *w.ID))
	case w.Speaker == nil || *w.Speaker == "":
		return nil, corrupt(errors.New("missing speaker"))
	case w.Message == nil:
		return nil, corrupt(errors.New("missing message"))
	case w.Time == nil:
		return nil, corrupt(errors.New("missing time"))
	}

	t, err := parseTime(*w.Time)
	if err != nil {
		return nil, corrupt(err)
	}

	rec := &MemoryRecord{
		ID:             *w.ID,
		Speaker:        *w.Speaker,
		Message:        *w.Message,
		Time:           t,
		Thread:         w.Thread,
		PriorMessageID: w.PriorMessageID,
	}
	switch {
	case w.ResultingMessageID != nil:
		if err := rec.ResultingMessageID.UnmarshalJSON(*w.ResultingMessageID); err != nil {
			return nil, corrupt(fmt.Errorf("resulting_message_id: %w", err))
		}
	case w.MyResponse != nil:
		rec.ResultingMessageID = LinkTo(*w.MyResponse)
	}
	return rec, nil
}
