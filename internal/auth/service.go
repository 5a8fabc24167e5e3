package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidAccount = errors.New("invalid account")
	ErrRateLimited    = errors.New("too many failed attempts")
)

const (
	RoleAdmin  = "admin"
	RoleAuthor = "author"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// Account is a configured API user. TokenHash is a bcrypt hash of the
// bearer token.
type Account struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	FullName  string `yaml:"full_name"`
	Role      string `yaml:"role"`
	TokenHash string `yaml:"token_hash"`
}

type Service struct {
	accounts []Account

	mu       sync.RWMutex
	verified map[string]*User
}

func NewService(accounts []Account) (*Service, error) {
	seen := map[int64]struct{}{}
	out := make([]Account, 0, len(accounts))
	for i, a := range accounts {
		a.Username = strings.TrimSpace(a.Username)
		a.Role = strings.ToLower(strings.TrimSpace(a.Role))
		if a.ID <= 0 || a.Username == "" {
			return nil, fmt.Errorf("%w: accounts[%d] needs id and username", ErrInvalidAccount, i)
		}
		if !isValidRole(a.Role) {
			return nil, fmt.Errorf("%w: accounts[%d] has unknown role %q", ErrInvalidAccount, i, a.Role)
		}
		if _, err := bcrypt.Cost([]byte(a.TokenHash)); err != nil {
			return nil, fmt.Errorf("%w: accounts[%d] token_hash is not a bcrypt hash", ErrInvalidAccount, i)
		}
		if _, ok := seen[a.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate account id %d", ErrInvalidAccount, a.ID)
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return &Service{accounts: out, verified: make(map[string]*User)}, nil
}

// Authenticate resolves a bearer token. Successful lookups are cached by the
// token's sha256 so bcrypt runs once per token.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}
	key := hashToken(token)

	s.mu.RLock()
	u, ok := s.verified[key]
	s.mu.RUnlock()
	if ok {
		return u, nil
	}

	for _, a := range s.accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(a.TokenHash), []byte(token)) != nil {
			continue
		}
		u := &User{ID: a.ID, Username: a.Username, FullName: a.FullName, Role: a.Role}
		s.mu.Lock()
		s.verified[key] = u
		s.mu.Unlock()
		return u, nil
	}
	return nil, ErrUnauthorized
}

// HashToken produces the value stored in Account.TokenHash.
func HashToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if len(token) < 16 {
		return "", errors.New("token must be at least 16 characters")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(b), nil
}

// ParseAccounts reads the AUTH_ACCOUNTS format:
// id:username:role:bcrypt_hash entries separated by ';'.
func ParseAccounts(raw string) ([]Account, error) {
	var out []Account
	for i, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: entry %d must be id:username:role:hash", ErrInvalidAccount, i+1)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d has invalid id", ErrInvalidAccount, i+1)
		}
		out = append(out, Account{
			ID:        id,
			Username:  strings.TrimSpace(parts[1]),
			FullName:  strings.TrimSpace(parts[1]),
			Role:      strings.TrimSpace(parts[2]),
			TokenHash: strings.TrimSpace(parts[3]),
		})
	}
	return out, nil
}

func isValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAuthor:
		return true
	default:
		return false
	}
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
