// Package events publishes consultation lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medifind/pkg/models"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	TypeBooked        = "consultation_booked"
	TypeCancelled     = "consultation_cancelled"
	TypeStatusChanged = "consultation_status_changed"
)

type ConsultationEvent struct {
	Type           string                    `json:"type"`
	ConsultationID string                    `json:"consultationId"`
	DoctorID       string                    `json:"doctorId"`
	PatientID      string                    `json:"patientId"`
	Status         models.ConsultationStatus `json:"status"`
	ScheduledTime  time.Time                 `json:"scheduledTime"`
	ChannelName    string                    `json:"channelName"`
	OccurredAt     time.Time                 `json:"occurredAt"`
}

// NewConsultationEvent describes c after an event of the given type.
func NewConsultationEvent(eventType string, c models.Consultation, at time.Time) ConsultationEvent {
	return ConsultationEvent{
		Type:           eventType,
		ConsultationID: c.ID,
		DoctorID:       c.DoctorID,
		PatientID:      c.PatientID,
		Status:         c.Status,
		ScheduledTime:  c.ScheduledTime,
		ChannelName:    c.ChannelName,
		OccurredAt:     at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event ConsultationEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer messageWriter
	topic  string
	log    logrus.FieldLogger
}

func NewKafkaProducer(brokers []string, topic string, log logrus.FieldLogger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, topic: topic, log: log}
}

// Publish writes the event keyed by consultation id, so one consultation's events stay
// ordered on a single partition.
func (kp *KafkaProducer) Publish(ctx context.Context, event ConsultationEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ConsultationID),
		Value: message,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	kp.log.WithFields(logrus.Fields{
		"topic":           kp.topic,
		"type":            event.Type,
		"consultation_id": event.ConsultationID,
	}).Debug("📨 Event delivered")
	return nil
}

func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, ConsultationEvent) error { return nil }
func (Nop) Close() error                                     { return nil }
