// Package auth implements storefront user accounts: registration, login,
// and the admin-assisted password reset flow. Users live in the "user:"
// key namespace, pending reset codes in "reset:"; both are keyed by the
// same canonical phone identity the ledger uses.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/axstore/axstore/internal/domain"
)

const (
	userPrefix  = "user:"
	resetPrefix = "reset:"
)

// User is a registered storefront account.
type User struct {
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

type resetCode struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service manages user accounts on top of the KV store.
type Service struct {
	kv    domain.KVStore
	phone domain.PhoneOptions
	now   func() time.Time
}

// NewService creates the account service.
func NewService(kv domain.KVStore, phone domain.PhoneOptions) *Service {
	return &Service{kv: kv, phone: phone, now: time.Now}
}

// HashPassword returns the hex SHA-256 of a password. The scheme is fixed
// by the existing user records; changing it would lock every account out.
func HashPassword(pwd string) string {
	sum := sha256.Sum256([]byte(pwd))
	return hex.EncodeToString(sum[:])
}

// Register creates an account. The phone becomes the account identity.
func (s *Service) Register(ctx context.Context, name, rawPhone, password, confirm string) (*User, error) {
	phone, err := domain.NormalizePhone(rawPhone, s.phone)
	if err != nil {
		return nil, err
	}
	if password == "" || password != confirm {
		return nil, domain.ErrPasswordMismatch
	}

	user := &User{
		Name:         strings.TrimSpace(name),
		Phone:        phone,
		PasswordHash: HashPassword(password),
		CreatedAt:    s.now(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.PutVersion(ctx, userPrefix+phone, data, 0); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

// Login checks credentials and returns the account.
func (s *Service) Login(ctx context.Context, rawPhone, password string) (*User, error) {
	user, _, err := s.getUser(ctx, rawPhone)
	if err != nil {
		return nil, err
	}
	supplied := HashPassword(password)
	if !hmac.Equal([]byte(supplied), []byte(user.PasswordHash)) {
		return nil, domain.ErrWrongPassword
	}
	return user, nil
}

// StartReset begins a password reset: it only confirms the account exists,
// so the caller can prompt for the admin-issued code.
func (s *Service) StartReset(ctx context.Context, rawPhone string) error {
	_, _, err := s.getUser(ctx, rawPhone)
	return err
}

// VerifyReset checks the reset code issued for the account.
func (s *Service) VerifyReset(ctx context.Context, rawPhone, code string) error {
	phone, err := domain.NormalizePhone(rawPhone, s.phone)
	if err != nil {
		return err
	}
	data, _, err := s.kv.Get(ctx, resetPrefix+phone)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrResetCodeInvalid
	}
	if err != nil {
		return err
	}
	var rc resetCode
	if err := json.Unmarshal(data, &rc); err != nil {
		return domain.ErrResetCodeInvalid
	}
	code = strings.TrimSpace(code)
	if rc.Code == "" || rc.Code != code {
		return domain.ErrResetCodeInvalid
	}
	return nil
}

// FinishReset verifies the code once more, sets the new password, and
// consumes the code.
func (s *Service) FinishReset(ctx context.Context, rawPhone, code, password, confirm string) error {
	if password == "" || password != confirm {
		return domain.ErrPasswordMismatch
	}
	if err := s.VerifyReset(ctx, rawPhone, code); err != nil {
		return err
	}

	user, version, err := s.getUser(ctx, rawPhone)
	if err != nil {
		return err
	}
	user.PasswordHash = HashPassword(password)
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.PutVersion(ctx, userPrefix+user.Phone, data, version); err != nil {
		return err
	}
	return s.kv.Delete(ctx, resetPrefix+user.Phone)
}

// GenerateResetCode issues a fresh 6-digit reset code for the account.
// Admin-only: the store owner reads the code to the customer out of band.
func (s *Service) GenerateResetCode(ctx context.Context, rawPhone string) (string, error) {
	user, _, err := s.getUser(ctx, rawPhone)
	if err != nil {
		return "", err
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	rc := resetCode{
		Code:      fmt.Sprintf("%06d", n.Int64()),
		CreatedAt: s.now(),
	}
	data, err := json.Marshal(rc)
	if err != nil {
		return "", fmt.Errorf("encode reset code: %w", err)
	}
	if err := s.kv.Put(ctx, resetPrefix+user.Phone, data); err != nil {
		return "", err
	}
	return rc.Code, nil
}

// Delete removes an account and any pending reset code.
func (s *Service) Delete(ctx context.Context, rawPhone string) error {
	user, _, err := s.getUser(ctx, rawPhone)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, userPrefix+user.Phone); err != nil {
		return err
	}
	return s.kv.Delete(ctx, resetPrefix+user.Phone)
}

// List returns all accounts sorted by name.
func (s *Service) List(ctx context.Context) ([]User, error) {
	entries, err := s.kv.List(ctx, userPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(entries))
	for _, e := range entries {
		var u User
		if err := json.Unmarshal(e.Value, &u); err != nil {
			return nil, fmt.Errorf("decode user %q: %w", e.Key, err)
		}
		if u.Phone == "" {
			u.Phone = strings.TrimPrefix(e.Key, userPrefix)
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		a, b := strings.ToLower(users[i].Name), strings.ToLower(users[j].Name)
		if a == b {
			return users[i].Phone < users[j].Phone
		}
		return a < b
	})
	return users, nil
}

func (s *Service) getUser(ctx context.Context, rawPhone string) (*User, int64, error) {
	phone, err := domain.NormalizePhone(rawPhone, s.phone)
	if err != nil {
		return nil, 0, err
	}
	data, version, err := s.kv.Get(ctx, userPrefix+phone)
	if err != nil {
		return nil, 0, err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, 0, fmt.Errorf("decode user %q: %w", phone, err)
	}
	if user.Phone == "" {
		user.Phone = phone
	}
	return &user, version, nil
}
