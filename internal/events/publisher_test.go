package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	msgs   []*message.Message
}

func (r *recordingPublisher) Publish(topic string, msgs ...*message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.topics = append(r.topics, topic)
		r.msgs = append(r.msgs, m)
	}
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestTopicFor(t *testing.T) {
	tests := []struct {
		prefix, eventType, want string
	}{
		{"exam", AttemptSubmitted, "exam.attempt"},
		{"lms.exam", AttemptGraded, "lms.exam.attempt"},
		{"", AttemptStarted, "attempt"},
		{"exam", "custom", "exam.custom"},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			if got := TopicFor(tt.prefix, tt.eventType); got != tt.want {
				t.Errorf("TopicFor(%q, %q) = %q, want %q", tt.prefix, tt.eventType, got, tt.want)
			}
		})
	}
}

func TestKafkaEventPublisherWritesEnvelope(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	rec := &recordingPublisher{}
	p := newKafkaEventPublisher(rec, "exam", logger)

	event := NewEvent(AttemptSubmitted, AttemptEvent{AttemptID: 4, ExamID: 2, UserID: "u1", Status: "graded"})
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(rec.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(rec.msgs))
	}
	msg := rec.msgs[0]
	if rec.topics[0] != "exam.attempt" {
		t.Errorf("topic = %q", rec.topics[0])
	}
	if msg.UUID != event.ID {
		t.Errorf("message uuid = %q, want event id %q", msg.UUID, event.ID)
	}
	if msg.Metadata.Get("event_type") != AttemptSubmitted {
		t.Errorf("event_type metadata = %q", msg.Metadata.Get("event_type"))
	}

	var decoded struct {
		Source string       `json:"source"`
		Data   AttemptEvent `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.Source != EventSource || decoded.Data.AttemptID != 4 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestMockEventPublisher(t *testing.T) {
	m := NewMockEventPublisher(nil)
	ctx := context.Background()
	_ = m.Publish(ctx, NewEvent(AttemptStarted, nil))
	_ = m.Publish(ctx, NewEvent(AttemptSubmitted, nil))

	if n := len(m.EventsOfType(AttemptStarted)); n != 1 {
		t.Errorf("started events = %d, want 1", n)
	}
	event := m.GetPublishedEvents()[0]
	if event.ID == "" || event.Version != EventVersion || event.Timestamp.IsZero() {
		t.Errorf("incomplete envelope: %+v", event)
	}

	m.ClearEvents()
	if len(m.GetPublishedEvents()) != 0 {
		t.Error("ClearEvents left events behind")
	}
}
