package binding

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/egrangel/facerecon-sub001/internal/data"
)

type mockBindingRepo struct {
	mock.Mock
}

func (m *mockBindingRepo) FindByCameraID(ctx context.Context, cameraID int64) ([]*data.EventCamera, error) {
	args := m.Called(ctx, cameraID)
	if r := args.Get(0); r != nil {
		return r.([]*data.EventCamera), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEventRepo struct {
	mock.Mock
}

func (m *mockEventRepo) GetByID(ctx context.Context, id int64) (*data.Event, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*data.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

func strPtr(s string) *string { return &s }

func allDayEvent(id int64) *data.Event {
	return &data.Event{
		ID:        id,
		IsActive:  true,
		StartTime: strPtr("00:00"),
		EndTime:   strPtr("23:59"),
	}
}

func TestActiveEventForCamera(t *testing.T) {
	bindings := new(mockBindingRepo)
	events := new(mockEventRepo)
	svc := NewService(bindings, events, nil)

	bindings.On("FindByCameraID", mock.Anything, int64(7)).Return([]*data.EventCamera{
		{ID: 1, EventID: 10, CameraID: 7, IsActive: false},
		{ID: 2, EventID: 11, CameraID: 7, IsActive: true},
	}, nil)
	events.On("GetByID", mock.Anything, int64(11)).Return(allDayEvent(11), nil)

	ec, err := svc.ActiveEventForCamera(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(11), ec.EventID)

	// Second call is served from cache.
	_, err = svc.ActiveEventForCamera(context.Background(), 7)
	require.NoError(t, err)
	bindings.AssertNumberOfCalls(t, "FindByCameraID", 1)
}

func TestActiveEventForCamera_NoBindings(t *testing.T) {
	bindings := new(mockBindingRepo)
	events := new(mockEventRepo)
	svc := NewService(bindings, events, nil)

	bindings.On("FindByCameraID", mock.Anything, int64(8)).Return(nil, nil)

	_, err := svc.ActiveEventForCamera(context.Background(), 8)
	assert.ErrorIs(t, err, ErrNoActiveEvent)

	// Negative results are cached too.
	_, err = svc.ActiveEventForCamera(context.Background(), 8)
	assert.ErrorIs(t, err, ErrNoActiveEvent)
	bindings.AssertNumberOfCalls(t, "FindByCameraID", 1)
}

func TestActiveEventForCamera_InactiveEventSkipped(t *testing.T) {
	bindings := new(mockBindingRepo)
	events := new(mockEventRepo)
	svc := NewService(bindings, events, nil)

	inactive := allDayEvent(11)
	inactive.IsActive = false

	bindings.On("FindByCameraID", mock.Anything, int64(7)).Return([]*data.EventCamera{
		{ID: 2, EventID: 11, CameraID: 7, IsActive: true},
	}, nil)
	events.On("GetByID", mock.Anything, int64(11)).Return(inactive, nil)

	_, err := svc.ActiveEventForCamera(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNoActiveEvent)
}

func TestActiveEventForCamera_OutsideWindowSkipped(t *testing.T) {
	bindings := new(mockBindingRepo)
	events := new(mockEventRepo)
	svc := NewService(bindings, events, nil)

	// A one-minute window that certainly does not contain the test run.
	closed := allDayEvent(11)
	now := time.Now()
	past := now.Add(-3 * time.Hour).Format("15:04")
	pastEnd := now.Add(-2 * time.Hour).Format("15:04")
	closed.StartTime, closed.EndTime = strPtr(past), strPtr(pastEnd)

	bindings.On("FindByCameraID", mock.Anything, int64(7)).Return([]*data.EventCamera{
		{ID: 2, EventID: 11, CameraID: 7, IsActive: true},
	}, nil)
	events.On("GetByID", mock.Anything, int64(11)).Return(closed, nil)

	_, err := svc.ActiveEventForCamera(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNoActiveEvent)
}

func TestInvalidate_PublishesToRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	bindings := new(mockBindingRepo)
	events := new(mockEventRepo)
	svc := NewService(bindings, events, client)

	// Prime the cache, then invalidate and expect a reload.
	bindings.On("FindByCameraID", mock.Anything, int64(7)).Return([]*data.EventCamera{
		{ID: 2, EventID: 11, CameraID: 7, IsActive: true},
	}, nil)
	events.On("GetByID", mock.Anything, int64(11)).Return(allDayEvent(11), nil)

	_, err := svc.ActiveEventForCamera(context.Background(), 7)
	require.NoError(t, err)

	svc.Invalidate(context.Background(), 7)

	_, err = svc.ActiveEventForCamera(context.Background(), 7)
	require.NoError(t, err)
	bindings.AssertNumberOfCalls(t, "FindByCameraID", 2)
}
