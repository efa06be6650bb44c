package recognition

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/detector"
	"github.com/egrangel/facerecon-sub001/internal/faceindex"
)

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Initialize(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDetector) Detect(ctx context.Context, jpegFrame []byte) (*detector.Result, error) {
	args := m.Called(ctx, jpegFrame)
	if r := args.Get(0); r != nil {
		return r.(*detector.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDetector) SetConfidenceThreshold(t float64) {
	m.Called(t)
}

func (m *MockDetector) Close() error {
	return m.Called().Error(0)
}

type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) Search(ctx context.Context, query []float32, k int) []faceindex.Match {
	args := m.Called(ctx, query, k)
	if r := args.Get(0); r != nil {
		return r.([]faceindex.Match)
	}
	return nil
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ActiveEventForCamera(ctx context.Context, cameraID int64) (*data.EventCamera, error) {
	args := m.Called(ctx, cameraID)
	if r := args.Get(0); r != nil {
		return r.(*data.EventCamera), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockDetectionStore struct {
	mock.Mock
}

func (m *MockDetectionStore) Create(ctx context.Context, d *data.Detection) error {
	return m.Called(ctx, d).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(event *DetectionEvent) error {
	return m.Called(event).Error(0)
}
