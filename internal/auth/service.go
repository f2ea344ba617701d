package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"optrade/internal/accounts"
	"optrade/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleAdmin marks operator tokens. User tokens carry no role claim.
	RoleAdmin = "admin"

	nonceTTL      = 5 * time.Minute
	adminTokenTTL = 24 * time.Hour
)

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

type nonceEntry struct {
	value   string
	expires time.Time
}

// Service issues login nonces and session tokens. Wallet login is
// challenge based: the client requests a nonce for its address, signs it and
// exchanges the signature for a JWT whose subject is the normalized address.
type Service struct {
	accounts *accounts.Service
	issuer   string
	secret   []byte
	ttl      time.Duration

	mu     sync.Mutex
	nonces map[string]nonceEntry
}

func NewService(accts *accounts.Service, issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{
		accounts: accts,
		issuer:   issuer,
		secret:   secret,
		ttl:      ttl,
		nonces:   make(map[string]nonceEntry),
	}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Nonce issues a fresh single-use challenge for the address, replacing any
// earlier one.
func (s *Service) Nonce(address string) (string, error) {
	key := accounts.NormalizeKey(address)
	if key == "" {
		return "", model.Validationf("address is required")
	}
	raw, err := randomHex(16)
	if err != nil {
		return "", err
	}
	nonce := fmt.Sprintf("Sign in to OPTrade: %s", raw)
	s.mu.Lock()
	s.nonces[key] = nonceEntry{value: nonce, expires: time.Now().Add(nonceTTL)}
	s.mu.Unlock()
	return nonce, nil
}

func (s *Service) consumeNonce(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.nonces[address]
	if !ok {
		return false
	}
	delete(s.nonces, address)
	return time.Now().Before(entry.expires)
}

// Verify exchanges a signed nonce for a session token, creating the account
// with its starting grant on first login. The nonce is consumed whether or
// not verification succeeds.
func (s *Service) Verify(ctx context.Context, address, signature, ip string) (string, model.User, error) {
	key := accounts.NormalizeKey(address)
	if key == "" {
		return "", model.User{}, model.Validationf("address is required")
	}
	if strings.TrimSpace(signature) == "" {
		return "", model.User{}, model.Validationf("signature is required")
	}
	if !s.consumeNonce(key) {
		return "", model.User{}, model.ErrUnauthenticated
	}
	u, err := s.accounts.GetOrCreate(ctx, key)
	if err != nil {
		return "", model.User{}, err
	}
	if err := s.accounts.RecordLogin(ctx, key, ip); err != nil {
		return "", model.User{}, err
	}
	u, err = s.accounts.Get(ctx, key)
	if err != nil {
		return "", model.User{}, err
	}
	token, err := s.signToken(key, "", s.ttl)
	if err != nil {
		return "", model.User{}, err
	}
	return token, u, nil
}

// GuestLogin mints a throwaway wallet address and logs it in, grant included.
func (s *Service) GuestLogin(ctx context.Context, ip string) (string, model.User, error) {
	raw, err := randomHex(20)
	if err != nil {
		return "", model.User{}, err
	}
	key := "0x" + raw
	u, err := s.accounts.GetOrCreate(ctx, key)
	if err != nil {
		return "", model.User{}, err
	}
	if err := s.accounts.RecordLogin(ctx, key, ip); err != nil {
		return "", model.User{}, err
	}
	u, err = s.accounts.Get(ctx, key)
	if err != nil {
		return "", model.User{}, err
	}
	token, err := s.signToken(key, "", s.ttl)
	if err != nil {
		return "", model.User{}, err
	}
	return token, u, nil
}

// SignAdminToken mints an operator token after the admin password check.
func (s *Service) SignAdminToken() (string, error) {
	return s.signToken(RoleAdmin, RoleAdmin, adminTokenTTL)
}

func (s *Service) signToken(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// ParseToken validates a token and returns its subject and role.
func (s *Service) ParseToken(token string) (string, string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", "", errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return "", "", errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return "", "", errors.New("invalid subject")
	}
	return claims.Subject, claims.Role, nil
}
