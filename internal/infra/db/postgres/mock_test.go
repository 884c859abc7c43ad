//go:build !integration

package postgres

import (
	"context"
	"time"

	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	red "mediaflow/internal/infra/redis"
)

// mockInnerRecipientRepo mocks the database repository the cache decorator wraps.
type mockInnerRecipientRepo struct {
	SaveFunc         func(ctx context.Context, tx repository.Tx, r *model.Recipient) error
	FindByIDFunc     func(ctx context.Context, tx repository.Tx, id string) (*model.Recipient, error)
	ListFunc         func(ctx context.Context, tx repository.Tx) ([]*model.Recipient, error)
	SaveAccountFunc  func(ctx context.Context, tx repository.Tx, a *model.DistributionAccount) error
	ListAccountsFunc func(ctx context.Context, tx repository.Tx, recipientID string) ([]*model.DistributionAccount, error)
	FindAccountsFunc func(ctx context.Context, tx repository.Tx, ids []string) ([]*model.DistributionAccount, error)
}

func (m *mockInnerRecipientRepo) Save(ctx context.Context, tx repository.Tx, r *model.Recipient) error {
	return m.SaveFunc(ctx, tx, r)
}
func (m *mockInnerRecipientRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Recipient, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerRecipientRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Recipient, error) {
	return m.ListFunc(ctx, tx)
}
func (m *mockInnerRecipientRepo) SaveAccount(ctx context.Context, tx repository.Tx, a *model.DistributionAccount) error {
	return m.SaveAccountFunc(ctx, tx, a)
}
func (m *mockInnerRecipientRepo) ListAccounts(ctx context.Context, tx repository.Tx, recipientID string) ([]*model.DistributionAccount, error) {
	return m.ListAccountsFunc(ctx, tx, recipientID)
}
func (m *mockInnerRecipientRepo) FindAccounts(ctx context.Context, tx repository.Tx, ids []string) ([]*model.DistributionAccount, error) {
	return m.FindAccountsFunc(ctx, tx, ids)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNXFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelFunc   func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if m.SetNXFunc != nil {
		return m.SetNXFunc(ctx, key, value, expiration)
	}
	return true, nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
