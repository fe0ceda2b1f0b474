package bon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/axstore/axstore/internal/domain"
)

// memKV is an in-memory domain.KVStore for service tests.
// onPutVersion, when set, runs before each conditional write — tests use it
// to interleave a concurrent writer.
type memKV struct {
	mu           sync.Mutex
	values       map[string][]byte
	versions     map[string]int64
	onPutVersion func(key string)
}

func newMemKV() *memKV {
	return &memKV{
		values:   make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return append([]byte(nil), v...), m.versions[key], nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	m.versions[key]++
	return nil
}

func (m *memKV) PutVersion(ctx context.Context, key string, value []byte, expect int64) error {
	if m.onPutVersion != nil {
		hook := m.onPutVersion
		m.onPutVersion = nil
		hook(key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[key] != expect {
		return domain.ErrVersionConflict
	}
	m.values[key] = append([]byte(nil), value...)
	m.versions[key]++
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.versions, key)
	return nil
}

func (m *memKV) List(_ context.Context, prefix string) ([]domain.KVEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []domain.KVEntry
	for k, v := range m.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			entries = append(entries, domain.KVEntry{
				Key:     k,
				Value:   append([]byte(nil), v...),
				Version: m.versions[k],
			})
		}
	}
	return entries, nil
}

func newTestService() (*Service, *memKV) {
	kv := newMemKV()
	svc := NewService(NewStore(kv), domain.DefaultPhoneOptions())
	return svc, kv
}

// ─── Transaction Engine Tests ───────────────────────────────────────────────

func TestApply_CreatesRecordOnFirstTransaction(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.Apply(ctx, "0812-345-6789", domain.KindGive, 50000, "pulsa", nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rec.Identity != "628123456789" {
		t.Errorf("Identity = %q, want 628123456789", rec.Identity)
	}
	if rec.Balance != 50000 {
		t.Errorf("Balance = %d, want 50000", rec.Balance)
	}
	if len(rec.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(rec.History))
	}
	tx := rec.History[0]
	if tx.ID == "" {
		t.Error("transaction must get a unique id at creation")
	}
	if tx.RecordedAt.IsZero() || !tx.OccurredAt.Equal(tx.RecordedAt) {
		t.Error("without an explicit date, recordedAt is used for both stamps")
	}
}

func TestApply_InvariantHoldsAcrossSequence(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	steps := []struct {
		kind   domain.Kind
		amount int64
	}{
		{domain.KindGive, 50000},
		{domain.KindGive, 20000},
		{domain.KindReceive, 30000},
		{domain.KindReceive, 60000},
	}
	for _, step := range steps {
		rec, err := svc.Apply(ctx, "08123456789", step.kind, step.amount, "", nil)
		if err != nil {
			t.Fatalf("Apply(%s %d): %v", step.kind, step.amount, err)
		}
		if rec.Balance != domain.Fold(rec.History) {
			t.Fatalf("invariant broken after %s %d: balance %d, fold %d",
				step.kind, step.amount, rec.Balance, domain.Fold(rec.History))
		}
	}

	rec, err := svc.Get(ctx, "08123456789")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	owes, owed := domain.Split(rec.Balance)
	if owes != 0 || owed != 20000 {
		t.Errorf("Split = (%d, %d), want (0, 20000)", owes, owed)
	}
}

func TestApply_RejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name    string
		phone   string
		kind    domain.Kind
		amount  int64
		wantErr error
	}{
		{"zero amount", "08123456789", domain.KindGive, 0, domain.ErrInvalidAmount},
		{"negative amount", "08123456789", domain.KindGive, -5, domain.ErrInvalidAmount},
		{"unknown kind", "08123456789", domain.Kind("loan"), 10, domain.ErrInvalidKind},
		{"bad phone", "not-a-phone", domain.KindGive, 10, domain.ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Apply(ctx, tt.phone, tt.kind, tt.amount, "", nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing was written.
	if _, err := svc.Get(ctx, "08123456789"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("store must stay untouched after rejected input, got %v", err)
	}
}

func TestApply_ExplicitDate(t *testing.T) {
	svc, _ := newTestService()
	when := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)

	rec, err := svc.Apply(context.Background(), "08123456789", domain.KindGive, 100, "", &when)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	tx := rec.History[0]
	if !tx.OccurredAt.Equal(when) {
		t.Errorf("OccurredAt = %v, want %v", tx.OccurredAt, when)
	}
	if tx.RecordedAt.Equal(when) {
		t.Error("RecordedAt must be the creation time, not the supplied date")
	}
}

func TestApply_RetriesOnConflict(t *testing.T) {
	svc, kv := newTestService()
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "08123456789", domain.KindGive, 100, "", nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// A concurrent writer lands between our read and write.
	kv.onPutVersion = func(string) {
		if _, err := svc.Apply(ctx, "08123456789", domain.KindGive, 7, "interleaved", nil); err != nil {
			t.Errorf("interleaved Apply: %v", err)
		}
	}

	rec, err := svc.Apply(ctx, "08123456789", domain.KindReceive, 30, "", nil)
	if err != nil {
		t.Fatalf("Apply after conflict: %v", err)
	}
	// Both writes survived: 100 + 7 − 30.
	if rec.Balance != 77 {
		t.Errorf("Balance = %d, want 77 (no lost update)", rec.Balance)
	}
	if len(rec.History) != 3 {
		t.Errorf("history length = %d, want 3", len(rec.History))
	}
}

func TestAmendAndRemove_RefoldBalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.Apply(ctx, "08123456789", domain.KindGive, 100, "", nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := svc.Apply(ctx, "08123456789", domain.KindReceive, 30, "", nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	giveID := rec.History[0].ID

	newAmount := int64(500)
	rec, err = svc.Amend(ctx, "08123456789", giveID, &newAmount, nil, nil)
	if err != nil {
		t.Fatalf("Amend: %v", err)
	}
	if rec.Balance != 470 {
		t.Errorf("Balance after amend = %d, want 470", rec.Balance)
	}

	rec, err = svc.Remove(ctx, "08123456789", giveID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if rec.Balance != -30 {
		t.Errorf("Balance after remove = %d, want -30", rec.Balance)
	}
	if len(rec.History) != 1 {
		t.Errorf("history length = %d, want 1", len(rec.History))
	}
}

func TestAmend_UnknownTransaction(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "08123456789", domain.KindGive, 100, "", nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := svc.Remove(ctx, "08123456789", "no-such-id"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("Remove = %v, want ErrTransactionNotFound", err)
	}
	amount := int64(5)
	if _, err := svc.Amend(ctx, "08123456789", "no-such-id", &amount, nil, nil); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Errorf("Amend = %v, want ErrTransactionNotFound", err)
	}
}

// ─── Directory Tests ────────────────────────────────────────────────────────

func TestCreate_DuplicateIdentity(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, "08123456789", "Budi"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Different spelling, same canonical identity.
	if _, err := svc.Create(ctx, "+62812-345-6789", "Budi S."); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("Create duplicate = %v, want ErrAlreadyExists", err)
	}
	if _, err := svc.Create(ctx, "08123456780", ""); !errors.Is(err, domain.ErrInvalidDisplayName) {
		t.Errorf("Create empty name = %v, want ErrInvalidDisplayName", err)
	}
}

func TestListAndSearch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, c := range []struct{ phone, name string }{
		{"08123456781", "Citra"},
		{"08123456782", "Agus"},
		{"08123456783", "Budi"},
	} {
		if _, err := svc.Create(ctx, c.phone, c.name); err != nil {
			t.Fatalf("Create %s: %v", c.name, err)
		}
	}

	records, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List length = %d, want 3", len(records))
	}
	if records[0].DisplayName != "Agus" || records[2].DisplayName != "Citra" {
		t.Errorf("List not sorted by name: %s, %s, %s",
			records[0].DisplayName, records[1].DisplayName, records[2].DisplayName)
	}

	matched, err := svc.Search(ctx, "ud")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matched) != 1 || matched[0].DisplayName != "Budi" {
		t.Errorf("Search(ud) = %v", matched)
	}
}

func TestRename(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, "08123456789", "Budi"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec, err := svc.Rename(ctx, "08123456789", "Budi Santoso")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if rec.DisplayName != "Budi Santoso" {
		t.Errorf("DisplayName = %q", rec.DisplayName)
	}
	if _, err := svc.Rename(ctx, "08999999999", "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Rename unknown = %v, want ErrNotFound", err)
	}
}

func TestSummary_MixedSigns(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "08123456781", domain.KindGive, 40000, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(ctx, "08123456782", domain.KindReceive, 20000, "", nil); err != nil {
		t.Fatal(err)
	}

	totals, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if totals.CustomerOwes != 40000 || totals.StoreOwes != 20000 || totals.Customers != 2 {
		t.Errorf("Summary = %+v", totals)
	}
}

// ─── Rekey Tests ────────────────────────────────────────────────────────────

func TestRekey_Move(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "08123456789", domain.KindGive, 100, "", nil); err != nil {
		t.Fatal(err)
	}

	rec, err := svc.Rekey(ctx, "08123456789", "08987654321")
	if err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	if rec.Identity != "628987654321" {
		t.Errorf("Identity = %q, want 628987654321", rec.Identity)
	}
	if rec.Balance != 100 {
		t.Errorf("Balance = %d, want 100", rec.Balance)
	}
	if _, err := svc.Get(ctx, "08123456789"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("old identity must be gone, got %v", err)
	}
}

func TestRekey_Merge(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "08123456789", domain.KindGive, 100, "", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(ctx, "08987654321", domain.KindReceive, 30, "", nil); err != nil {
		t.Fatal(err)
	}

	rec, err := svc.Rekey(ctx, "08123456789", "08987654321")
	if err != nil {
		t.Fatalf("Rekey merge: %v", err)
	}
	if rec.Balance != 70 {
		t.Errorf("merged Balance = %d, want 70", rec.Balance)
	}
	if len(rec.History) != 2 {
		t.Errorf("merged history length = %d, want 2", len(rec.History))
	}
	if rec.Balance != domain.Fold(rec.History) {
		t.Error("merge must refold, never sum stored totals")
	}
}

func TestRekey_SelfIsNoOp(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Apply(ctx, "08123456789", domain.KindGive, 100, "", nil); err != nil {
		t.Fatal(err)
	}
	// Same canonical identity under two spellings.
	if _, err := svc.Rekey(ctx, "08123456789", "+62812-345-6789"); !errors.Is(err, domain.ErrNoOpIdentity) {
		t.Errorf("Rekey to self = %v, want ErrNoOpIdentity", err)
	}
}

func TestRekey_UnknownSource(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Rekey(context.Background(), "08123456789", "08987654321"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Rekey unknown source = %v, want ErrNotFound", err)
	}
}

// ─── Legacy Record Migration ────────────────────────────────────────────────

func TestGet_UpgradesLegacyRecord(t *testing.T) {
	svc, kv := newTestService()
	ctx := context.Background()

	// A record written by an old front end: no ids, "time" field, and a
	// total clamped to zero even though the history says overpaid.
	legacy := `{
		"name": "Budi",
		"total": 0,
		"history": [
			{"type": "give", "amount": 40000, "note": "pulsa", "date": "2025-11-02T10:00:00.000Z"},
			{"type": "receive", "amount": 60000, "time": "2025-11-03T09:00:00.000Z"}
		]
	}`
	if err := kv.Put(ctx, Key("628123456789"), []byte(legacy)); err != nil {
		t.Fatal(err)
	}

	rec, err := svc.Get(ctx, "08123456789")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Balance != -20000 {
		t.Errorf("Balance = %d, want -20000 (clamped total must be refolded)", rec.Balance)
	}
	if rec.Identity != "628123456789" {
		t.Errorf("Identity = %q", rec.Identity)
	}
	for i, tx := range rec.History {
		if tx.ID == "" {
			t.Errorf("history[%d] missing id after upgrade", i)
		}
		if tx.OccurredAt.IsZero() || tx.RecordedAt.IsZero() {
			t.Errorf("history[%d] missing timestamps after upgrade", i)
		}
	}

	// The upgrade was persisted: the stored value now decodes cleanly.
	data, _, err := kv.Get(ctx, Key("628123456789"))
	if err != nil {
		t.Fatal(err)
	}
	upgraded, wasLegacy, err := decodeRecord(data, "628123456789")
	if err != nil {
		t.Fatal(err)
	}
	if wasLegacy {
		t.Error("stored record still in legacy shape after first read")
	}
	if upgraded.Balance != -20000 {
		t.Errorf("persisted Balance = %d, want -20000", upgraded.Balance)
	}
}
