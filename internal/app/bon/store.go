// Package bon implements the customer debt ledger ("bon" — running debt
// between the store and a customer): transaction engine, customer
// directory, identity migration, and the store-wide summary.
//
// One ledger record per canonical phone identity, persisted as JSON under
// the "bon:" key namespace. The balance is always the fold of the history;
// the stored total is only a cache of that fold.
package bon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/axstore/axstore/internal/domain"
)

// KeyPrefix is the KV namespace holding ledger records.
const KeyPrefix = "bon:"

// Store persists ledger records in the key-value namespace.
type Store struct {
	kv domain.KVStore
}

// NewStore wraps a KV store with the ledger record codec.
func NewStore(kv domain.KVStore) *Store {
	return &Store{kv: kv}
}

// Key returns the KV key for a canonical identity.
func Key(identity string) string { return KeyPrefix + identity }

// Get loads the record for identity, upgrading legacy data on the way in.
// The returned version feeds the compare-and-swap on the following Put.
// Upgraded records are written back opportunistically so the store converges
// to the canonical shape; a concurrent writer winning that race is fine.
func (s *Store) Get(ctx context.Context, identity string) (*domain.Record, int64, error) {
	data, version, err := s.kv.Get(ctx, Key(identity))
	if err != nil {
		return nil, 0, err
	}
	rec, upgraded, err := decodeRecord(data, identity)
	if err != nil {
		return nil, 0, fmt.Errorf("decode record %q: %w", identity, err)
	}
	if upgraded {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.kv.PutVersion(ctx, Key(identity), data, version); err == nil {
				version++
			}
		}
	}
	return rec, version, nil
}

// Put writes the record using compare-and-swap against version.
// version == 0 requires the record to be new.
func (s *Store) Put(ctx context.Context, rec *domain.Record, version int64) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", rec.Identity, err)
	}
	return s.kv.PutVersion(ctx, Key(rec.Identity), data, version)
}

// Delete removes the record for identity.
func (s *Store) Delete(ctx context.Context, identity string) error {
	return s.kv.Delete(ctx, Key(identity))
}

// List returns every ledger record. Legacy records are upgraded in memory;
// they are rewritten durably the next time someone reads or writes them
// individually.
func (s *Store) List(ctx context.Context) ([]*domain.Record, error) {
	entries, err := s.kv.List(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	records := make([]*domain.Record, 0, len(entries))
	for _, e := range entries {
		identity := e.Key[len(KeyPrefix):]
		rec, _, err := decodeRecord(e.Value, identity)
		if err != nil {
			return nil, fmt.Errorf("decode record %q: %w", identity, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ─── Record Codec / Legacy Migration ────────────────────────────────────────
// Historical records were written by several front-end generations that
// disagreed on bookkeeping: no transaction ids, "time" instead of "date",
// totals incremented in place (and sometimes clamped at zero). Decoding
// resolves all of that once: ids are assigned, dates parsed leniently, and
// the balance is refolded from history.

type wireTransaction struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Amount     json.Number `json:"amount"`
	Note       string      `json:"note"`
	Date       string      `json:"date"`
	Time       string      `json:"time"`
	RecordedAt string      `json:"recorded_at"`
}

type wireRecord struct {
	Identity    string            `json:"phone"`
	DisplayName string            `json:"name"`
	Total       json.Number       `json:"total"`
	History     []wireTransaction `json:"history"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// decodeRecord parses a stored record and reports whether it had to be
// upgraded from a legacy shape.
func decodeRecord(data []byte, identity string) (*domain.Record, bool, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false, err
	}

	rec := &domain.Record{
		Identity:    w.Identity,
		DisplayName: w.DisplayName,
		CreatedAt:   parseTime(w.CreatedAt),
		UpdatedAt:   parseTime(w.UpdatedAt),
	}
	upgraded := false
	if rec.Identity == "" {
		rec.Identity = identity
		upgraded = true
	}

	for _, wt := range w.History {
		tx := domain.Transaction{
			ID:         wt.ID,
			Kind:       domain.Kind(wt.Type),
			Note:       wt.Note,
			OccurredAt: parseTime(wt.Date),
			RecordedAt: parseTime(wt.RecordedAt),
		}
		if n, err := wt.Amount.Int64(); err == nil {
			tx.Amount = n
		} else if f, err := wt.Amount.Float64(); err == nil {
			tx.Amount = int64(f)
		}
		if tx.ID == "" {
			tx.ID = uuid.NewString()
			upgraded = true
		}
		if tx.OccurredAt.IsZero() && wt.Time != "" {
			tx.OccurredAt = parseTime(wt.Time)
			upgraded = true
		}
		if tx.RecordedAt.IsZero() {
			tx.RecordedAt = tx.OccurredAt
			upgraded = true
		}
		if tx.OccurredAt.IsZero() {
			tx.OccurredAt = tx.RecordedAt
			upgraded = true
		}
		rec.History = append(rec.History, tx)
	}

	// Refold. A stored total that disagrees (clamped or drifted) loses.
	stored, _ := w.Total.Int64()
	rec.Recompute()
	if rec.Balance != stored {
		upgraded = true
	}

	return rec, upgraded, nil
}

// parseTime parses the timestamp formats found in stored records.
// Returns the zero time when nothing matches.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
