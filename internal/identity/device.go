package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lfelipe/studyhall/internal/remote"
	"go.uber.org/zap"
)

// AuthClient is the slice of the remote service used for device sign-in.
type AuthClient interface {
	StartDeviceAuth(ctx context.Context) (*remote.DeviceAuth, error)
	PollDeviceToken(ctx context.Context, deviceCode string) (*remote.Token, error)
}

// BeginDeviceLogin starts a device-code sign-in and polls for approval in
// the background. The returned DeviceAuth carries the code and verification
// URL for the caller to display (plain or as a QR). On approval the token is
// stored and the identity change is announced; on expiry the flow ends
// silently, leaving the session signed out.
func (m *Manager) BeginDeviceLogin(ctx context.Context, client AuthClient) (*remote.DeviceAuth, error) {
	da, err := client.StartDeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin device login: %w", err)
	}

	go m.pollDeviceToken(ctx, client, da)
	return da, nil
}

func (m *Manager) pollDeviceToken(ctx context.Context, client AuthClient, da *remote.DeviceAuth) {
	interval := time.Duration(da.IntervalSec) * time.Second
	deadline := time.Now().Add(time.Duration(da.ExpiresInSec) * time.Second)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				m.logger.Info("device login expired", zap.String("user_code", da.UserCode))
				return
			}
			tok, err := client.PollDeviceToken(ctx, da.DeviceCode)
			if errors.Is(err, remote.ErrAuthPending) {
				continue
			}
			if err != nil {
				m.logger.Warn("device token poll failed", zap.Error(err))
				continue
			}
			if err := m.SetToken(tok.AccessToken); err != nil {
				m.logger.Error("rejecting issued token", zap.Error(err))
			}
			return
		case <-ctx.Done():
			return
		}
	}
}
