package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/remote"
	"go.uber.org/zap"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func validToken(t *testing.T) string {
	return signToken(t, jwt.MapClaims{
		"sub":     "u1",
		"name":    "Ana",
		"premium": true,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
}

func testManager(t *testing.T) (*Manager, *bus.Bus) {
	t.Helper()
	b := bus.New()
	m := NewManager(filepath.Join(t.TempDir(), "token.json"), b, zap.NewNop())
	return m, b
}

func TestSetTokenAndCurrent(t *testing.T) {
	m, b := testManager(t)
	sub := b.Subscribe("session.", 4)
	defer sub.Close()

	if _, ok := m.Current(); ok {
		t.Fatal("signed in before SetToken")
	}

	if err := m.SetToken(validToken(t)); err != nil {
		t.Fatal(err)
	}

	ident, ok := m.Current()
	if !ok {
		t.Fatal("not signed in after SetToken")
	}
	if ident.UserID != "u1" || ident.Name != "Ana" || !ident.Premium {
		t.Errorf("identity = %+v", ident)
	}
	if m.Token() == "" {
		t.Error("Token() empty after SetToken")
	}

	select {
	case evt := <-sub.C():
		if evt.Kind != bus.KindIdentityChanged || evt.Payload != true {
			t.Errorf("event = %q %v, want identity_changed true", evt.Kind, evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no identity change event")
	}
}

func TestLoadPersistedToken(t *testing.T) {
	b := bus.New()
	path := filepath.Join(t.TempDir(), "token.json")

	m1 := NewManager(path, b, zap.NewNop())
	if err := m1.SetToken(validToken(t)); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(path, b, zap.NewNop())
	if err := m2.Load(); err != nil {
		t.Fatal(err)
	}
	ident, ok := m2.Current()
	if !ok || ident.UserID != "u1" {
		t.Errorf("loaded identity = %+v, ok = %v", ident, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	m, _ := testManager(t)
	if err := m.Load(); err != nil {
		t.Errorf("Load() with no file error = %v", err)
	}
	if _, ok := m.Current(); ok {
		t.Error("signed in with no token file")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m, _ := testManager(t)
	expired := signToken(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if err := m.SetToken(expired); err == nil {
		t.Error("SetToken accepted expired token")
	}
}

func TestMissingClaimsRejected(t *testing.T) {
	m, _ := testManager(t)
	noSub := signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if err := m.SetToken(noSub); err == nil {
		t.Error("SetToken accepted token without subject")
	}
	noExp := signToken(t, jwt.MapClaims{"sub": "u1"})
	if err := m.SetToken(noExp); err == nil {
		t.Error("SetToken accepted token without expiry")
	}
}

func TestClear(t *testing.T) {
	m, b := testManager(t)
	if err := m.SetToken(validToken(t)); err != nil {
		t.Fatal(err)
	}
	sub := b.Subscribe("session.", 4)
	defer sub.Close()

	if err := m.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Current(); ok {
		t.Error("still signed in after Clear")
	}
	if m.Token() != "" {
		t.Error("token survives Clear")
	}

	select {
	case evt := <-sub.C():
		if evt.Payload != false {
			t.Errorf("event payload = %v, want false", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no identity change event")
	}

	// Clearing a signed-out session is a no-op.
	if err := m.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

type fakeAuthClient struct {
	pendingPolls int
	token        string
}

func (f *fakeAuthClient) StartDeviceAuth(_ context.Context) (*remote.DeviceAuth, error) {
	return &remote.DeviceAuth{
		DeviceCode:      "dc-1",
		UserCode:        "ABCD-1234",
		VerificationURL: "https://studyhall.app/link",
		ExpiresInSec:    60,
		IntervalSec:     1,
	}, nil
}

func (f *fakeAuthClient) PollDeviceToken(_ context.Context, deviceCode string) (*remote.Token, error) {
	if f.pendingPolls > 0 {
		f.pendingPolls--
		return nil, remote.ErrAuthPending
	}
	return &remote.Token{AccessToken: f.token}, nil
}

func TestDeviceLogin(t *testing.T) {
	m, b := testManager(t)
	sub := b.Subscribe("session.", 4)
	defer sub.Close()

	client := &fakeAuthClient{pendingPolls: 1, token: validToken(t)}
	da, err := m.BeginDeviceLogin(context.Background(), client)
	if err != nil {
		t.Fatal(err)
	}
	if da.UserCode == "" || da.VerificationURL == "" {
		t.Errorf("device auth = %+v", da)
	}

	select {
	case evt := <-sub.C():
		if evt.Payload != true {
			t.Errorf("event payload = %v, want true", evt.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("device login never completed")
	}

	if ident, ok := m.Current(); !ok || ident.UserID != "u1" {
		t.Errorf("identity after login = %+v, ok = %v", ident, ok)
	}
}
