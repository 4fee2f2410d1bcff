package mocks

import (
	"context"
	"io"

	"recordapi/internal/model"
	"recordapi/internal/service"
	"recordapi/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockRecordService struct {
	mock.Mock
}

func (m *MockRecordService) Submit(ctx context.Context, payload []byte, att service.Attachment) service.Outcome {
	args := m.Called(ctx, payload, att)
	return args.Get(0).(service.Outcome)
}

func (m *MockRecordService) Fetch(ctx context.Context, filename string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Get(1).(storage.ObjectInfo), args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockRecordService) Get(ctx context.Context, id string) (*model.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record), args.Error(1)
}

func (m *MockRecordService) List(ctx context.Context, limit, offset int) (*service.RecordListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RecordListResult), args.Error(1)
}

func (m *MockRecordService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
