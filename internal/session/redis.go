// Package session keeps the short-lived state of the storefront in Redis: purchase
// sessions of customers and pack drafts of admins. Entries expire after a TTL that
// is refreshed on every save.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"topup_store/internal/models"
	"topup_store/internal/pkg/logger"
	"topup_store/internal/registry"
	"topup_store/internal/workflow"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates a missing or expired session.
var ErrNotFound = errors.New("session: not found")

// paymentLockTTL bounds how long a crashed payment keeps its session locked.
const paymentLockTTL = 2 * time.Minute

// Draft is an admin game form in progress: the game fields and its pack registry.
// GameID is empty for a game that does not exist yet.
type Draft struct {
	ID       string         `json:"id"`
	AdminID  int32          `json:"adminId"`
	GameID   string         `json:"gameId,omitempty"`
	Game     models.Game    `json:"game"`
	Registry registry.State `json:"registry"`
}

// Store persists purchase sessions and drafts.
type Store interface {
	SavePurchase(ctx context.Context, s *workflow.Session) error
	LoadPurchase(ctx context.Context, id string) (*workflow.Session, error)
	DeletePurchase(ctx context.Context, id string) error
	LockPayment(ctx context.Context, id string) (bool, error)
	UnlockPayment(ctx context.Context, id string) error

	SaveDraft(ctx context.Context, d *Draft) error
	LoadDraft(ctx context.Context, id string) (*Draft, error)
	DeleteDraft(ctx context.Context, id string) error

	Close() error
}

// Redis implements Store on a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedis connects to Redis and pings it.
func NewRedis(addr, password string, db int, ttl time.Duration, l *logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	const defaultTimeout = 5 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client, ttl: ttl, log: l.Component("session")}, nil
}

func (r *Redis) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.log.Sugar().Errorf("Failed to store %s: %s", key, err)
		return err
	}
	return nil
}

func (r *Redis) get(ctx context.Context, key string, value interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		r.log.Sugar().Errorf("Failed to read %s: %s", key, err)
		return err
	}
	return json.Unmarshal(data, value)
}

func (r *Redis) del(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.log.Sugar().Errorf("Failed to delete %s: %s", key, err)
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SavePurchase stores a purchase session.
func (r *Redis) SavePurchase(ctx context.Context, s *workflow.Session) error {
	return r.set(ctx, fmt.Sprintf(KeyPurchase, s.ID), s)
}

// LoadPurchase reads a purchase session.
func (r *Redis) LoadPurchase(ctx context.Context, id string) (*workflow.Session, error) {
	var s workflow.Session
	if err := r.get(ctx, fmt.Sprintf(KeyPurchase, id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeletePurchase removes a purchase session.
func (r *Redis) DeletePurchase(ctx context.Context, id string) error {
	return r.del(ctx, fmt.Sprintf(KeyPurchase, id))
}

// LockPayment takes the payment lock of a purchase session. It reports false when
// another payment of the same session holds the lock.
func (r *Redis) LockPayment(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf(KeyPaymentLock, id)
	locked, err := r.client.SetNX(ctx, key, 1, paymentLockTTL).Result()
	if err != nil {
		r.log.Sugar().Errorf("Failed to lock %s: %s", key, err)
		return false, err
	}
	return locked, nil
}

// UnlockPayment releases the payment lock of a purchase session.
func (r *Redis) UnlockPayment(ctx context.Context, id string) error {
	key := fmt.Sprintf(KeyPaymentLock, id)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Sugar().Errorf("Failed to unlock %s: %s", key, err)
		return err
	}
	return nil
}

// SaveDraft stores an admin draft.
func (r *Redis) SaveDraft(ctx context.Context, d *Draft) error {
	return r.set(ctx, fmt.Sprintf(KeyDraft, d.ID), d)
}

// LoadDraft reads an admin draft.
func (r *Redis) LoadDraft(ctx context.Context, id string) (*Draft, error) {
	var d Draft
	if err := r.get(ctx, fmt.Sprintf(KeyDraft, id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDraft removes an admin draft.
func (r *Redis) DeleteDraft(ctx context.Context, id string) error {
	return r.del(ctx, fmt.Sprintf(KeyDraft, id))
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
