package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	"mediaflow/internal/infra/metrics"
	red "mediaflow/internal/infra/redis"
)

var _ repository.RecipientRepository = (*recipientRepoCacheDecorator)(nil)

// recipientRepoCacheDecorator caches recipients and their account lists. Both
// are read on every publish and change only through seeding.
type recipientRepoCacheDecorator struct {
	inner repository.RecipientRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewRecipientRepoCacheDecorator(inner repository.RecipientRepository, cache red.RedisClient, ttl time.Duration, log *zerolog.Logger) repository.RecipientRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &recipientRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: log}
}

func recipientKey(id string) string { return fmt.Sprintf("recipient:%s", id) }

func accountsKey(recipientID string) string { return fmt.Sprintf("recipient:%s:accounts", recipientID) }

func (d *recipientRepoCacheDecorator) lookup(ctx context.Context, name, key string, dst any) bool {
	val, err := d.cache.Get(ctx, key)
	if err == nil && json.Unmarshal([]byte(val), dst) == nil {
		metrics.ObserveCacheLookup(name, true)
		return true
	}
	if err != nil && err != redis.Nil && d.log != nil {
		d.log.Warn().Err(err).Str("key", key).Msg("recipient cache read failed")
	}
	metrics.ObserveCacheLookup(name, false)
	return false
}

func (d *recipientRepoCacheDecorator) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, key, b, d.ttl)
}

func (d *recipientRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Recipient, error) {
	key := recipientKey(id)
	var rc model.Recipient
	if d.lookup(ctx, "recipient", key, &rc) {
		return &rc, nil
	}
	out, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, key, out)
	return out, nil
}

func (d *recipientRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, rc *model.Recipient) error {
	_ = d.cache.Del(ctx, recipientKey(rc.ID))
	return d.inner.Save(ctx, tx, rc)
}

// List is not cached; it only backs the operator listing.
func (d *recipientRepoCacheDecorator) List(ctx context.Context, tx repository.Tx) ([]*model.Recipient, error) {
	return d.inner.List(ctx, tx)
}

func (d *recipientRepoCacheDecorator) SaveAccount(ctx context.Context, tx repository.Tx, a *model.DistributionAccount) error {
	_ = d.cache.Del(ctx, accountsKey(a.RecipientID))
	return d.inner.SaveAccount(ctx, tx, a)
}

func (d *recipientRepoCacheDecorator) ListAccounts(ctx context.Context, tx repository.Tx, recipientID string) ([]*model.DistributionAccount, error) {
	key := accountsKey(recipientID)
	var accounts []*model.DistributionAccount
	if d.lookup(ctx, "recipient_accounts", key, &accounts) {
		return accounts, nil
	}
	accounts, err := d.inner.ListAccounts(ctx, tx, recipientID)
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 {
		d.store(ctx, key, accounts)
	}
	return accounts, nil
}

func (d *recipientRepoCacheDecorator) FindAccounts(ctx context.Context, tx repository.Tx, ids []string) ([]*model.DistributionAccount, error) {
	return d.inner.FindAccounts(ctx, tx, ids)
}
