package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ferndesk/roomscribe/internal/stream"
	"github.com/ferndesk/roomscribe/internal/transcript"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher emits finalized transcript events onto a Kafka topic,
// keyed by room id so one room's transcripts stay ordered within a
// partition. With no brokers configured it runs in log-only mode.
type KafkaPublisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
}

func NewKafkaPublisher(brokers []string, topic string) stream.Publisher {
	if len(brokers) == 0 {
		slog.Info("kafka not configured, transcript stream disabled")
		return &KafkaPublisher{enabled: false}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	slog.Info("kafka publisher initialized", "brokers", brokers, "topic", topic)
	return &KafkaPublisher{writer: writer, topic: topic, enabled: true}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev transcript.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal transcript event", "room_id", ev.RoomID, "error", err)
		return
	}
	if !p.enabled {
		slog.Debug("transcript event", "room_id", ev.RoomID, "payload", string(payload))
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.RoomID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("write transcript to kafka",
			"topic", p.topic, "room_id", ev.RoomID, "error", err)
	}
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
