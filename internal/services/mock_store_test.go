package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/emadnahed/shtlink/internal/models"
	"github.com/emadnahed/shtlink/internal/repository"
)

// MockStore is a mock implementation of repository.Store. RunInTx returns
// the configured error, or else runs the callback against Tx.
type MockStore struct {
	mock.Mock
	Tx *MockTx
}

func (m *MockStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m.Tx)
}

func (m *MockStore) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Mapping), args.Error(1)
}

func (m *MockStore) List(ctx context.Context) ([]models.Mapping, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Mapping), args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTx is a mock implementation of repository.Tx.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Insert(ctx context.Context, mapping *models.Mapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *MockTx) Get(ctx context.Context, shortCode string) (*models.Mapping, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Mapping), args.Error(1)
}

func (m *MockTx) DeleteByLongValue(ctx context.Context, longValue string) (string, error) {
	args := m.Called(ctx, longValue)
	return args.String(0), args.Error(1)
}

func (m *MockTx) Delete(ctx context.Context, shortCode string) (*models.Mapping, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Mapping), args.Error(1)
}

func (m *MockTx) Rename(ctx context.Context, shortCode, newShortCode string) (*models.Mapping, error) {
	args := m.Called(ctx, shortCode, newShortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Mapping), args.Error(1)
}

func newMockStore() *MockStore {
	return &MockStore{Tx: &MockTx{}}
}
