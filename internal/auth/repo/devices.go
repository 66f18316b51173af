package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
)

const deviceKeyPrefix = "auth:device"

// DefaultDeviceRetention keeps an expired device token around long enough for
// a lookup to report it as expired rather than unknown.
const DefaultDeviceRetention = 7 * 24 * time.Hour

// DeviceStore keeps one JSON encoded device token per key in Redis.
type DeviceStore struct {
	redis     *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

var _ auth.DeviceTokenStore = (*DeviceStore)(nil)

func NewDeviceStore(rdb *redis.Client) *DeviceStore {
	return &DeviceStore{
		redis:     rdb,
		prefix:    deviceKeyPrefix,
		retention: DefaultDeviceRetention,
		now:       time.Now,
	}
}

func (s *DeviceStore) key(deviceID string) string {
	return s.prefix + ":" + deviceID
}

func (s *DeviceStore) GetDeviceToken(ctx context.Context, deviceID string) (*entity.DeviceToken, error) {
	raw, err := s.redis.Get(ctx, s.key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("DEVICE_TOKEN_NOT_FOUND").With("device_id", deviceID).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("DEVICE_TOKEN_GET_FAILED").With("device_id", deviceID).Wrap(err)
	}
	var t entity.DeviceToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, oops.Code("DEVICE_TOKEN_DECODE_FAILED").With("device_id", deviceID).Wrap(err)
	}
	return &t, nil
}

func (s *DeviceStore) PutDeviceToken(ctx context.Context, t *entity.DeviceToken) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return oops.Code("DEVICE_TOKEN_ENCODE_FAILED").With("device_id", t.DeviceID).Wrap(err)
	}
	ttl := t.MaxAge.Sub(s.now()) + s.retention
	if ttl <= 0 {
		ttl = s.retention
	}
	if err := s.redis.Set(ctx, s.key(t.DeviceID), raw, ttl).Err(); err != nil {
		return oops.Code("DEVICE_TOKEN_PUT_FAILED").With("device_id", t.DeviceID).Wrap(err)
	}
	return nil
}
