package mocks

import (
	"context"

	"recordapi/internal/model"
	"recordapi/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRecordRepository) Insert(ctx context.Context, rec *model.Record) (repository.Handle, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(repository.Handle), args.Error(1)
}

func (m *MockRecordRepository) AppendFilename(ctx context.Context, h repository.Handle, filename string) error {
	args := m.Called(ctx, h, filename)
	return args.Error(0)
}

func (m *MockRecordRepository) FindByID(ctx context.Context, id string) (*model.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record), args.Error(1)
}

func (m *MockRecordRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Record], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Record]), args.Error(1)
}
