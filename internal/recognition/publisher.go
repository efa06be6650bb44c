package recognition

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DetectionEvent is the message published for every persisted detection so
// downstream consumers (notification service, dashboards) react in realtime.
type DetectionEvent struct {
	DetectionID  int64     `json:"detection_id"`
	EventID      int64     `json:"event_id"`
	CameraID     int64     `json:"camera_id"`
	Status       string    `json:"status"`
	PersonName   string    `json:"person_name,omitempty"`
	PersonFaceID *int64    `json:"person_face_id,omitempty"`
	Similarity   float64   `json:"similarity,omitempty"`
	ImageURL     string    `json:"image_url"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Publisher pushes detection events to NATS with bounded retry.
type Publisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewPublisher(conn *nats.Conn, subject string, maxRetries int) *Publisher {
	return &Publisher{conn: conn, subject: subject, maxRetries: maxRetries}
}

func (p *Publisher) Publish(event *DetectionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
