// Package auth issues and verifies the bearer tokens the HTTP surface
// consumes. Vendor identity and the admin role both travel as signed JWT
// claims; password storage for vendors lives upstream, so the manager only
// holds the static users it is explicitly given.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	serrors "github.com/souq-network/marketplace/internal/errors"
)

// Role separates vendor self-service from admin operations.
type Role string

const (
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

// Principal is the authenticated caller attached to a request. For vendors
// the subject is the vendor id.
type Principal struct {
	Subject string
	Role    Role
}

// IsAdmin reports whether the principal may use admin operations.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Claims is the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type user struct {
	password string
	role     Role
}

// Manager signs and verifies tokens with an HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration

	mu    sync.RWMutex
	users map[string]user
}

// NewManager creates a token manager. ttl bounds how long issued tokens stay
// valid.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		users:  make(map[string]user),
	}
}

// RegisterUser adds a static credential. Used for the configured admin user
// and for local development vendors.
func (m *Manager) RegisterUser(username, password string, role Role) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = user{password: password, role: role}
}

// Login checks a credential pair and returns a signed token.
func (m *Manager) Login(username, password string) (string, error) {
	m.mu.RLock()
	u, ok := m.users[strings.TrimSpace(username)]
	m.mu.RUnlock()
	if !ok || u.password != password {
		return "", serrors.Unauthorized("invalid credentials")
	}
	return m.Issue(strings.TrimSpace(username), u.role)
}

// Issue signs a token for the given subject and role.
func (m *Manager) Issue(subject string, role Role) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", serrors.Internal("sign token", err)
	}
	return signed, nil
}

// Verify parses a bearer token and returns the principal it carries.
func (m *Manager) Verify(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, serrors.Unauthorized("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, serrors.Unauthorized("invalid or expired token")
	}

	role := Role(claims.Role)
	if role != RoleAdmin {
		role = RoleVendor
	}
	if claims.Subject == "" {
		return Principal{}, serrors.Unauthorized("token missing subject")
	}
	return Principal{Subject: claims.Subject, Role: role}, nil
}
