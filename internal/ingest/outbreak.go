package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageReader is the kafka.Reader surface the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutbreakConsumer reads classifier outbreak signals from Kafka with
// at-least-once semantics. A signal's offset is committed only after the
// caller has processed it, so a failed create is redelivered rather than
// dropped. Duplicate delivery is harmless: the alert store's dedup key
// absorbs replays.
type OutbreakConsumer struct {
	reader messageReader
	log    zerolog.Logger
}

// NewOutbreakConsumer creates a consumer for the outbreak topic. An empty
// broker list returns (nil, nil); the caller treats a nil consumer as
// "feed not configured" and idles.
func NewOutbreakConsumer(brokers, topic, groupID string, log zerolog.Logger) (*OutbreakConsumer, error) {
	if strings.TrimSpace(brokers) == "" {
		return nil, nil
	}
	if topic == "" || groupID == "" {
		return nil, fmt.Errorf("outbreak consumer: topic and group id are required")
	}

	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokerList,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	log.Info().Strs("brokers", brokerList).Str("topic", topic).Str("group_id", groupID).
		Msg("outbreak consumer configured")

	return &OutbreakConsumer{
		reader: reader,
		log:    log.With().Str("component", "outbreak-feed").Logger(),
	}, nil
}

// Fetch reads the next outbreak signal. Blocks until a message arrives or
// the context is done. Malformed messages are committed and skipped so a
// bad producer cannot wedge the partition; valid messages stay
// uncommitted until the caller calls Commit after processing.
func (c *OutbreakConsumer) Fetch(ctx context.Context) (OutbreakSignal, kafka.Message, error) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return OutbreakSignal{}, kafka.Message{}, fmt.Errorf("fetching outbreak message: %w", err)
		}

		var signal OutbreakSignal
		if err := json.Unmarshal(msg.Value, &signal); err != nil {
			c.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping malformed outbreak message")
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return OutbreakSignal{}, kafka.Message{}, fmt.Errorf("committing malformed message: %w", err)
			}
			continue
		}
		if signal.SpeciesID == "" || signal.DiseaseName == "" {
			c.log.Warn().Int64("offset", msg.Offset).Msg("skipping outbreak message with missing fields")
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return OutbreakSignal{}, kafka.Message{}, fmt.Errorf("committing incomplete message: %w", err)
			}
			continue
		}

		return signal, msg, nil
	}
}

// Commit acknowledges a processed signal's message.
func (c *OutbreakConsumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("committing outbreak message: %w", err)
	}
	return nil
}

// Close releases the Kafka reader.
func (c *OutbreakConsumer) Close() error {
	return c.reader.Close()
}
