// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Transaction Types ──────────────────────────────────────────────────────

// Kind represents the direction of a bon transaction.
// The string values are the wire values used by every historical record,
// so legacy JSON decodes without translation.
type Kind string

const (
	// KindGive — the store extends new credit; the customer's debt grows.
	KindGive Kind = "give"
	// KindReceive — the customer pays debt down.
	KindReceive Kind = "receive"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindGive || k == KindReceive
}

// Transaction is one immutable entry in a customer's bon history.
type Transaction struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"type"`
	Amount     int64     `json:"amount"` // whole rupiah, always > 0
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"date"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ─── Ledger Record ──────────────────────────────────────────────────────────

// Record is the persisted bon state for one customer identity.
// Balance is signed: positive means the customer owes the store,
// negative means the store owes the customer (overpaid).
type Record struct {
	Identity    string        `json:"phone"`
	DisplayName string        `json:"name"`
	Balance     int64         `json:"total"`
	History     []Transaction `json:"history"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewRecord creates an empty record for a canonical identity.
func NewRecord(identity, displayName string, now time.Time) *Record {
	return &Record{
		Identity:    identity,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Fold derives the net balance from a history: Σ give − Σ receive.
// This is the single authoritative balance rule. Stored totals are a cache
// of this fold, never a source of truth.
func Fold(history []Transaction) int64 {
	var total int64
	for _, tx := range history {
		switch tx.Kind {
		case KindGive:
			total += tx.Amount
		case KindReceive:
			total -= tx.Amount
		}
	}
	return total
}

// Recompute refreshes Balance from History. Every mutation of History must
// be followed by a Recompute — no code path adjusts Balance incrementally.
func (r *Record) Recompute() {
	r.Balance = Fold(r.History)
}

// FindTransaction returns the index of the transaction with the given id,
// or -1 when absent. Transactions are addressed by id, never by position.
func (r *Record) FindTransaction(id string) int {
	for i := range r.History {
		if r.History[i].ID == id {
			return i
		}
	}
	return -1
}

// ─── Balance Projection ─────────────────────────────────────────────────────

// Split projects a signed balance into the two display-facing figures.
// Exactly one of the results is non-zero unless balance is zero.
func Split(balance int64) (customerOwes, storeOwes int64) {
	if balance > 0 {
		return balance, 0
	}
	return 0, -balance
}

// Totals aggregates projected balances across many customers.
// The two sides accumulate independently: with mixed-sign balances they are
// not each other's negation, so they must never be derived from one sum.
type Totals struct {
	CustomerOwes int64 `json:"total_owed"`
	StoreOwes    int64 `json:"total_owe"`
	Customers    int   `json:"customers"`
}

// Add folds one record's balance into the totals.
func (t *Totals) Add(balance int64) {
	owes, owed := Split(balance)
	t.CustomerOwes += owes
	t.StoreOwes += owed
	t.Customers++
}
