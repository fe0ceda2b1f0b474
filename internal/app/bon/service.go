package bon

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/axstore/axstore/internal/domain"
	"github.com/axstore/axstore/internal/infra/observability"
)

// casRetries bounds the re-read/re-apply loop on concurrent writes.
// A conflict means another request to the same customer landed between our
// read and write; re-applying on fresh state preserves both transactions.
const casRetries = 3

// Service is the ledger application service: transaction engine, customer
// directory, and identity migration over one Store.
type Service struct {
	store *Store
	phone domain.PhoneOptions
	now   func() time.Time
}

// NewService creates the ledger service.
func NewService(store *Store, phone domain.PhoneOptions) *Service {
	return &Service{
		store: store,
		phone: phone,
		now:   time.Now,
	}
}

func (s *Service) normalize(raw string) (string, error) {
	return domain.NormalizePhone(raw, s.phone)
}

// ─── Transaction Engine ─────────────────────────────────────────────────────

// Apply validates and appends a transaction to a customer's history and
// refreshes the balance. An unknown identity gets a fresh record, so the
// first transaction against a new customer creates the ledger.
// occurredAt may be nil; the recording time is then used for both stamps.
func (s *Service) Apply(ctx context.Context, rawPhone string, kind domain.Kind, amount int64, note string, occurredAt *time.Time) (*domain.Record, error) {
	identity, err := s.normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var rec *domain.Record
	err = s.withRetry(func() error {
		now := s.now()
		var version int64
		rec, version, err = s.store.Get(ctx, identity)
		if errors.Is(err, domain.ErrNotFound) {
			rec, version = domain.NewRecord(identity, "", now), 0
		} else if err != nil {
			return err
		}

		tx := domain.Transaction{
			ID:         uuid.NewString(),
			Kind:       kind,
			Amount:     amount,
			Note:       note,
			RecordedAt: now,
			OccurredAt: now,
		}
		if occurredAt != nil {
			tx.OccurredAt = *occurredAt
		}
		rec.History = append(rec.History, tx)
		rec.Recompute()
		rec.UpdatedAt = now
		return s.store.Put(ctx, rec, version)
	})
	if err != nil {
		return nil, err
	}
	observability.TransactionsApplied.WithLabelValues(string(kind)).Inc()
	return rec, nil
}

// Amend edits a transaction, addressed by id, and refolds the balance.
// Nil parameters leave the corresponding field untouched.
func (s *Service) Amend(ctx context.Context, rawPhone, txID string, amount *int64, note *string, occurredAt *time.Time) (*domain.Record, error) {
	identity, err := s.normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	if amount != nil && *amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var rec *domain.Record
	err = s.withRetry(func() error {
		var version int64
		rec, version, err = s.store.Get(ctx, identity)
		if err != nil {
			return err
		}
		i := rec.FindTransaction(txID)
		if i < 0 {
			return domain.ErrTransactionNotFound
		}
		if amount != nil {
			rec.History[i].Amount = *amount
		}
		if note != nil {
			rec.History[i].Note = *note
		}
		if occurredAt != nil {
			rec.History[i].OccurredAt = *occurredAt
		}
		rec.Recompute()
		rec.UpdatedAt = s.now()
		return s.store.Put(ctx, rec, version)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes a transaction, addressed by id, and refolds the balance.
func (s *Service) Remove(ctx context.Context, rawPhone, txID string) (*domain.Record, error) {
	identity, err := s.normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	var rec *domain.Record
	err = s.withRetry(func() error {
		var version int64
		rec, version, err = s.store.Get(ctx, identity)
		if err != nil {
			return err
		}
		i := rec.FindTransaction(txID)
		if i < 0 {
			return domain.ErrTransactionNotFound
		}
		rec.History = append(rec.History[:i], rec.History[i+1:]...)
		rec.Recompute()
		rec.UpdatedAt = s.now()
		return s.store.Put(ctx, rec, version)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// withRetry runs op, re-running it on version conflicts so a lost-update
// race costs a retry instead of a dropped transaction.
func (s *Service) withRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < casRetries; attempt++ {
		if err = op(); !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		observability.ConflictRetries.Inc()
	}
	return err
}

// ─── Customer Directory ─────────────────────────────────────────────────────

// Create registers a customer with an empty ledger.
func (s *Service) Create(ctx context.Context, rawPhone, displayName string) (*domain.Record, error) {
	identity, err := s.normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domain.ErrInvalidDisplayName
	}

	rec := domain.NewRecord(identity, displayName, s.now())
	if err := s.store.Put(ctx, rec, 0); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return rec, nil
}

// Rename updates a customer's display name.
func (s *Service) Rename(ctx context.Context, rawPhone, displayName string) (*domain.Record, error) {
	identity, err := s.normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domain.ErrInvalidDisplayName
	}

	var rec *domain.Record
	err = s.withRetry(func() error {
		var version int64
		rec, version, err = s.store.Get(ctx, identity)
		if err != nil {
			return err
		}
		rec.DisplayName = displayName
		rec.UpdatedAt = s.now()
		return s.store.Put(ctx, rec, version)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns one customer's full record.
func (s *Service) Get(ctx context.Context, rawPhone string) (*domain.Record, error) {
	identity, err := s.normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	rec, _, err := s.store.Get(ctx, identity)
	return rec, err
}

// List returns all customers sorted by display name.
func (s *Service) List(ctx context.Context) ([]*domain.Record, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := strings.ToLower(records[i].DisplayName), strings.ToLower(records[j].DisplayName)
		if a == b {
			return records[i].Identity < records[j].Identity
		}
		return a < b
	})
	return records, nil
}

// Search filters the directory by case-insensitive display name substring.
func (s *Service) Search(ctx context.Context, query string) ([]*domain.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return records, nil
	}
	matched := records[:0]
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.DisplayName), query) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Summary aggregates projected balances across all customers.
// The two sides accumulate separately; see domain.Totals.
func (s *Service) Summary(ctx context.Context) (domain.Totals, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return domain.Totals{}, err
	}
	var totals domain.Totals
	for _, rec := range records {
		totals.Add(rec.Balance)
	}
	return totals, nil
}

// ─── Identity Migration ─────────────────────────────────────────────────────

// Rekey moves a customer's ledger to a new identity. When a record already
// exists at the destination the two are merged: histories concatenate, the
// balance is refolded from the merged history (stored totals are never
// summed; either may have drifted), the more recently updated non-empty
// display name wins, and createdAt is the earliest of the pair.
func (s *Service) Rekey(ctx context.Context, oldRaw, newRaw string) (*domain.Record, error) {
	oldIdentity, err := s.normalize(oldRaw)
	if err != nil {
		return nil, err
	}
	newIdentity, err := s.normalize(newRaw)
	if err != nil {
		return nil, err
	}
	if oldIdentity == newIdentity {
		return nil, domain.ErrNoOpIdentity
	}

	var merged *domain.Record
	err = s.withRetry(func() error {
		src, _, err := s.store.Get(ctx, oldIdentity)
		if err != nil {
			return err
		}

		dst, dstVersion, err := s.store.Get(ctx, newIdentity)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Plain move.
			merged = src
			merged.Identity = newIdentity
			dstVersion = 0
		case err != nil:
			return err
		default:
			merged = mergeRecords(src, dst)
		}

		merged.UpdatedAt = s.now()
		if err := s.store.Put(ctx, merged, dstVersion); err != nil {
			return err
		}
		return s.store.Delete(ctx, oldIdentity)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// mergeRecords folds src into dst under dst's identity. The display name
// comes from whichever record was updated more recently, falling back to
// the other when that name is empty.
func mergeRecords(src, dst *domain.Record) *domain.Record {
	merged := &domain.Record{
		Identity:    dst.Identity,
		DisplayName: dst.DisplayName,
		History:     append(append([]domain.Transaction{}, dst.History...), src.History...),
		CreatedAt:   dst.CreatedAt,
		UpdatedAt:   dst.UpdatedAt,
	}
	if src.UpdatedAt.After(dst.UpdatedAt) && src.DisplayName != "" {
		merged.DisplayName = src.DisplayName
	}
	if merged.DisplayName == "" {
		merged.DisplayName = src.DisplayName
	}
	if !src.CreatedAt.IsZero() && (merged.CreatedAt.IsZero() || src.CreatedAt.Before(merged.CreatedAt)) {
		merged.CreatedAt = src.CreatedAt
	}
	sort.SliceStable(merged.History, func(i, j int) bool {
		return merged.History[i].RecordedAt.Before(merged.History[j].RecordedAt)
	})
	merged.Recompute()
	return merged
}
