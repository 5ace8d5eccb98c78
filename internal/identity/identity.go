// Package identity tracks the signed-in user for a session. Most scope keys
// derive from the user id, so feeds watch identity transitions to know when
// binding becomes possible (absent -> present) or must stop (present ->
// absent).
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lfelipe/studyhall/internal/bus"
	"go.uber.org/zap"
)

// Identity is the signed-in user as described by the access token claims.
type Identity struct {
	UserID    string
	Name      string
	Premium   bool
	ExpiresAt time.Time
}

type tokenFile struct {
	AccessToken string `json:"access_token"`
}

// Manager owns the session's stored credentials and the current identity.
type Manager struct {
	path   string
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.RWMutex
	token string
	ident *Identity
}

// NewManager creates a manager persisting credentials at path.
func NewManager(path string, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{path: path, bus: b, logger: logger}
}

// Load reads stored credentials, if any. An expired or unparseable token is
// discarded and the session starts signed out.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		m.logger.Warn("discarding unreadable token file", zap.Error(err))
		return nil
	}

	ident, err := parseClaims(tf.AccessToken)
	if err != nil {
		m.logger.Warn("discarding invalid stored token", zap.Error(err))
		return nil
	}
	if time.Now().After(ident.ExpiresAt) {
		m.logger.Info("stored token expired", zap.String("user_id", ident.UserID))
		return nil
	}

	m.mu.Lock()
	m.token = tf.AccessToken
	m.ident = ident
	m.mu.Unlock()
	return nil
}

// Current returns the signed-in identity, if any.
func (m *Manager) Current() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ident == nil || time.Now().After(m.ident.ExpiresAt) {
		return Identity{}, false
	}
	return *m.ident, true
}

// Token returns the current access token, empty when signed out. Shaped to
// be used directly as the remote client's token source.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SetToken validates, stores, and persists a freshly issued token, then
// announces the identity transition.
func (m *Manager) SetToken(token string) error {
	ident, err := parseClaims(token)
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	if time.Now().After(ident.ExpiresAt) {
		return errors.New("token already expired")
	}

	data, err := json.Marshal(tokenFile{AccessToken: token})
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	m.mu.Lock()
	m.token = token
	m.ident = ident
	m.mu.Unlock()

	m.logger.Info("signed in", zap.String("user_id", ident.UserID))
	m.bus.Publish(bus.NewEvent(bus.KindIdentityChanged, true))
	return nil
}

// Clear signs the session out, removing stored credentials.
func (m *Manager) Clear() error {
	m.mu.Lock()
	wasSignedIn := m.ident != nil
	m.token = ""
	m.ident = nil
	m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	if wasSignedIn {
		m.logger.Info("signed out")
		m.bus.Publish(bus.NewEvent(bus.KindIdentityChanged, false))
	}
	return nil
}

// parseClaims extracts identity fields from the access token. The daemon is
// a client of the issuing service; signature verification happens server
// side, so claims are read unverified here and only the expiry is enforced.
func parseClaims(token string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("token missing subject claim")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, errors.New("token missing expiry claim")
	}

	ident := &Identity{UserID: sub, ExpiresAt: exp.Time}
	if name, ok := claims["name"].(string); ok {
		ident.Name = name
	}
	if premium, ok := claims["premium"].(bool); ok {
		ident.Premium = premium
	}
	return ident, nil
}
