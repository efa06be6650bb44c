package scheduler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/stream"
)

type MockEventRepo struct {
	mock.Mock
}

func (m *MockEventRepo) ListScheduled(ctx context.Context) ([]*data.Event, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.([]*data.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEventRepo) GetByID(ctx context.Context, id int64) (*data.Event, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*data.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockEventCameraRepo struct {
	mock.Mock
}

func (m *MockEventCameraRepo) FindActiveByEventID(ctx context.Context, eventID int64) ([]*data.EventCamera, error) {
	args := m.Called(ctx, eventID)
	if r := args.Get(0); r != nil {
		return r.([]*data.EventCamera), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockCameraRepo struct {
	mock.Mock
}

func (m *MockCameraRepo) GetByID(ctx context.Context, id int64) (*data.Camera, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*data.Camera), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockStreamService struct {
	mock.Mock
}

func (m *MockStreamService) StartSession(cfg stream.SessionConfig) error {
	return m.Called(cfg).Error(0)
}

func (m *MockStreamService) StopSession(sessionID string) error {
	return m.Called(sessionID).Error(0)
}
