package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/axstore/axstore/internal/domain"
)

// ─── Bon Ledger API ─────────────────────────────────────────────────────────
// The routes the storefront bon pages call:
//
// GET  /api/bon/list-customers — all customers with projected balances
// GET  /api/bon/get?phone=     — one customer with full history
// GET  /api/bon/summary        — store-wide owed/owe totals
// POST /api/bon/create-customer
// POST /api/bon/add-trx
// POST /api/bon/update-trx
// POST /api/bon/delete-trx
// POST /api/bon/rename
// POST /api/bon/rekey

// customerView is one row in the customer list.
type customerView struct {
	Phone        string `json:"phone"`
	Name         string `json:"name"`
	CustomerOwes int64  `json:"owed"`
	StoreOwes    int64  `json:"overpaid"`
}

func toCustomerView(rec *domain.Record) customerView {
	owes, owed := domain.Split(rec.Balance)
	return customerView{
		Phone:        rec.Identity,
		Name:         rec.DisplayName,
		CustomerOwes: owes,
		StoreOwes:    owed,
	}
}

// recordFields renders a full record for the detail view: the raw signed
// total plus its projection, and the history sorted newest first by
// occurrence date for display (creation order stays intact in storage).
func recordFields(rec *domain.Record) map[string]interface{} {
	owes, owed := domain.Split(rec.Balance)
	history := append([]domain.Transaction{}, rec.History...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].OccurredAt.After(history[j].OccurredAt)
	})
	return map[string]interface{}{
		"phone":    rec.Identity,
		"name":     rec.DisplayName,
		"total":    rec.Balance,
		"owed":     owes,
		"overpaid": owed,
		"history":  history,
	}
}

// handleListCustomers returns all customers, optionally filtered by ?q=.
// GET /api/bon/list-customers
func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	var (
		records []*domain.Record
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		records, err = s.ledger.Search(r.Context(), q)
	} else {
		records, err = s.ledger.List(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	customers := make([]customerView, 0, len(records))
	for _, rec := range records {
		customers = append(customers, toCustomerView(rec))
	}
	writeOK(w, map[string]interface{}{"customers": customers})
}

// handleGetCustomer returns one customer's record with full history.
// GET /api/bon/get?phone=...
func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Get(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordFields(rec))
}

// handleSummary returns the store-wide totals.
// GET /api/bon/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	totals, err := s.ledger.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"total_owed": totals.CustomerOwes,
		"total_owe":  totals.StoreOwes,
		"customers":  totals.Customers,
	})
}

// handleCreateCustomer registers a customer with an empty ledger.
// POST /api/bon/create-customer {"name": ..., "phone": ...}
func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	rec, err := s.ledger.Create(r.Context(), req.Phone, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordFields(rec))
}

// handleAddTransaction appends a give/receive transaction.
// POST /api/bon/add-trx {"phone": ..., "type": "give"|"receive", "amount": ..., "note": ..., "date": ...}
func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone  string `json:"phone"`
		Type   string `json:"type"`
		Amount int64  `json:"amount"`
		Note   string `json:"note"`
		Date   string `json:"date"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var occurredAt *time.Time
	if req.Date != "" {
		t, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			writeBadRequest(w, "date must be RFC 3339")
			return
		}
		occurredAt = &t
	}

	rec, err := s.ledger.Apply(r.Context(), req.Phone, domain.Kind(req.Type), req.Amount, req.Note, occurredAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordFields(rec))
}

// handleUpdateTransaction edits a transaction by id.
// POST /api/bon/update-trx {"phone": ..., "id": ..., "amount"?: ..., "note"?: ..., "date"?: ...}
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone  string  `json:"phone"`
		ID     string  `json:"id"`
		Amount *int64  `json:"amount"`
		Note   *string `json:"note"`
		Date   string  `json:"date"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var occurredAt *time.Time
	if req.Date != "" {
		t, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			writeBadRequest(w, "date must be RFC 3339")
			return
		}
		occurredAt = &t
	}

	rec, err := s.ledger.Amend(r.Context(), req.Phone, req.ID, req.Amount, req.Note, occurredAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordFields(rec))
}

// handleDeleteTransaction removes a transaction by id.
// POST /api/bon/delete-trx {"phone": ..., "id": ...}
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		ID    string `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	rec, err := s.ledger.Remove(r.Context(), req.Phone, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordFields(rec))
}

// handleRename updates a customer's display name.
// POST /api/bon/rename {"phone": ..., "name": ...}
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	rec, err := s.ledger.Rename(r.Context(), req.Phone, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordFields(rec))
}

// handleRekey moves a customer's ledger to a new phone identity, merging
// with any record already there.
// POST /api/bon/rekey {"old_phone": ..., "new_phone": ...}
func (s *Server) handleRekey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPhone string `json:"old_phone"`
		NewPhone string `json:"new_phone"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	rec, err := s.ledger.Rekey(r.Context(), req.OldPhone, req.NewPhone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordFields(rec))
}
