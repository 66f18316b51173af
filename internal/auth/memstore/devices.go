package memstore

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
)

// Devices implements auth.DeviceTokenStore in memory.
type Devices struct {
	mu     sync.RWMutex
	tokens map[string]entity.DeviceToken
}

var _ auth.DeviceTokenStore = (*Devices)(nil)

func NewDevices() *Devices {
	return &Devices{tokens: make(map[string]entity.DeviceToken)}
}

func (d *Devices) GetDeviceToken(_ context.Context, deviceID string) (*entity.DeviceToken, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tokens[deviceID]
	if !ok {
		return nil, oops.Code("DEVICE_TOKEN_NOT_FOUND").With("device_id", deviceID).Wrap(auth.ErrNotFound)
	}
	return &t, nil
}

func (d *Devices) PutDeviceToken(_ context.Context, t *entity.DeviceToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[t.DeviceID] = *t
	return nil
}
