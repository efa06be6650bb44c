// Package binding resolves which active event a camera's detections belong
// to. The lookup sits on the hot path (every analyzed frame), so results are
// cached in-process with a short TTL and invalidated through Redis pub/sub
// when event state changes on another node.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/scheduler"
)

var ErrNoActiveEvent = errors.New("no active event for camera")

const (
	cacheSize = 1024
	cacheTTL  = 5 * time.Second

	invalidationChannel = "facerecon:binding:invalidate"
)

// BindingRepo lists event-camera rows for a camera.
type BindingRepo interface {
	FindByCameraID(ctx context.Context, cameraID int64) ([]*data.EventCamera, error)
}

// EventRepo loads events by id.
type EventRepo interface {
	GetByID(ctx context.Context, id int64) (*data.Event, error)
}

type Service struct {
	bindings BindingRepo
	events   EventRepo
	redis    *redis.Client
	cache    *lru.LRU[int64, *data.EventCamera]
}

// NewService builds the resolver. redisClient may be nil; cross-node
// invalidation is then disabled and only the TTL bounds staleness.
func NewService(bindings BindingRepo, events EventRepo, redisClient *redis.Client) *Service {
	return &Service{
		bindings: bindings,
		events:   events,
		redis:    redisClient,
		cache:    lru.NewLRU[int64, *data.EventCamera](cacheSize, nil, cacheTTL),
	}
}

// ActiveEventForCamera returns the active event binding for a camera, or
// ErrNoActiveEvent. A camera bound to several active events resolves to the
// first by binding id, which is the oldest.
func (s *Service) ActiveEventForCamera(ctx context.Context, cameraID int64) (*data.EventCamera, error) {
	if ec, ok := s.cache.Get(cameraID); ok {
		if ec == nil {
			return nil, ErrNoActiveEvent
		}
		return ec, nil
	}

	bindings, err := s.bindings.FindByCameraID(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("resolving event for camera %d: %w", cameraID, err)
	}

	now := time.Now()
	var active *data.EventCamera
	for _, b := range bindings {
		if !b.IsActive {
			continue
		}
		event, err := s.events.GetByID(ctx, b.EventID)
		if err != nil {
			if errors.Is(err, data.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("loading event %d: %w", b.EventID, err)
		}
		if !event.IsActive {
			continue
		}
		// startTime/endTime are stored as HH:MM time-of-day strings, so
		// the check is a local wall-clock window, not a timestamp range.
		if event.StartTime != nil && event.EndTime != nil &&
			!scheduler.WithinWindow(*event.StartTime, *event.EndTime, now) {
			continue
		}
		active = b
		break
	}

	// Negative results are cached too; an unbound camera asks on every
	// frame otherwise.
	s.cache.Add(cameraID, active)
	if active == nil {
		return nil, ErrNoActiveEvent
	}
	return active, nil
}

// Invalidate drops the cached binding for a camera and tells the other nodes
// to do the same.
func (s *Service) Invalidate(ctx context.Context, cameraID int64) {
	s.cache.Remove(cameraID)
	if s.redis == nil {
		return
	}
	if err := s.redis.Publish(ctx, invalidationChannel, fmt.Sprintf("%d", cameraID)).Err(); err != nil {
		log.Printf("[Binding] Failed to publish invalidation for camera %d: %v", cameraID, err)
	}
}

// ListenInvalidations subscribes to the invalidation channel and evicts
// cameras announced by other nodes. Blocks until ctx is cancelled.
func (s *Service) ListenInvalidations(ctx context.Context) {
	if s.redis == nil {
		return
	}
	sub := s.redis.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var cameraID int64
			if _, err := fmt.Sscanf(msg.Payload, "%d", &cameraID); err != nil {
				log.Printf("[Binding] Bad invalidation payload %q", msg.Payload)
				continue
			}
			s.cache.Remove(cameraID)
		}
	}
}
