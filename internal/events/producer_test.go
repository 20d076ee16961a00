package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"medifind/pkg/models"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishKeysByConsultation(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "consultation_events", log: log}

	at := time.Date(2025, 11, 28, 12, 0, 0, 0, time.UTC)
	c := models.Consultation{ID: "c1", DoctorID: "D", PatientID: "A", Status: models.StatusScheduled, ChannelName: "consultation_c1"}
	if err := p.Publish(context.Background(), NewConsultationEvent(TypeBooked, c, at)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "c1" {
		t.Fatalf("expected key c1, got %s", msg.Key)
	}
	var decoded ConsultationEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Type != TypeBooked || decoded.Status != models.StatusScheduled || !decoded.OccurredAt.Equal(at) {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestPublishError(t *testing.T) {
	p := &KafkaProducer{writer: &fakeWriter{err: errors.New("leader not available")}, log: logrus.New()}
	if err := p.Publish(context.Background(), ConsultationEvent{ConsultationID: "c1"}); err == nil {
		t.Fatalf("expected error")
	}
}
