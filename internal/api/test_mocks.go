package api

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/stream"
)

type MockStreamController struct {
	mock.Mock
}

func (m *MockStreamController) StartSession(cfg stream.SessionConfig) error {
	args := m.Called(cfg)
	return args.Error(0)
}

func (m *MockStreamController) StopSession(sessionID string) error {
	args := m.Called(sessionID)
	return args.Error(0)
}

func (m *MockStreamController) IsActive(sessionID string) bool {
	args := m.Called(sessionID)
	return args.Bool(0)
}

func (m *MockStreamController) SessionStats(sessionID string) (stream.Stats, bool) {
	args := m.Called(sessionID)
	return args.Get(0).(stream.Stats), args.Bool(1)
}

func (m *MockStreamController) ListActive() []stream.Stats {
	args := m.Called()
	return args.Get(0).([]stream.Stats)
}

type MockCameraRepo struct {
	mock.Mock
}

func (m *MockCameraRepo) GetByID(ctx context.Context, id int64) (*data.Camera, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Camera), args.Error(1)
}

type MockEventRepo struct {
	mock.Mock
}

func (m *MockEventRepo) GetByID(ctx context.Context, id int64) (*data.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Event), args.Error(1)
}

func (m *MockEventRepo) SetActive(ctx context.Context, id int64, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

type MockDetectionRepo struct {
	mock.Mock
}

func (m *MockDetectionRepo) GetByID(ctx context.Context, id int64) (*data.Detection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Detection), args.Error(1)
}

func (m *MockDetectionRepo) ListByEventWindow(ctx context.Context, eventID int64, from, to time.Time) ([]*data.Detection, error) {
	args := m.Called(ctx, eventID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*data.Detection), args.Error(1)
}

func (m *MockDetectionRepo) SetStatus(ctx context.Context, id int64, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) ManuallyStartEvent(ctx context.Context, eventID int64) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockOrchestrator) ManuallyStopEvent(ctx context.Context, eventID int64) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockOrchestrator) HandleEventStatusChange(ctx context.Context, eventID int64, isActive bool) error {
	args := m.Called(ctx, eventID, isActive)
	return args.Error(0)
}

type MockFaceIndex struct {
	mock.Mock
}

func (m *MockFaceIndex) Rebuild(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockFaceIndex) SetThreshold(t float64) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockFaceIndex) Threshold() float64 {
	args := m.Called()
	return args.Get(0).(float64)
}

func (m *MockFaceIndex) Count() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockFaceIndex) Dimension() int {
	args := m.Called()
	return args.Int(0)
}

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*data.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.User), args.Error(1)
}
