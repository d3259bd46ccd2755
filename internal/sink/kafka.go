package sink

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"fedview/internal/config"
	"fedview/pkg/types"
)

// KafkaSink publishes composed records to a Kafka topic, one JSON
// message per record. The run id is used as the message key so all
// records of one run land on the same partition.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafka(cfg config.SinkConfig) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (s *KafkaSink) Publish(ctx context.Context, res *types.RunResult) error {
	msgs, err := Messages(res)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Messages builds the Kafka messages for a run without touching the
// network. Split out so the encoding is testable without a broker.
func Messages(res *types.RunResult) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(res.Records))
	for i, rec := range res.Records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(res.RunID),
			Value: payload,
		})
	}
	return msgs, nil
}
