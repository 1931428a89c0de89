package ingest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	messages  []kafka.Message
	next      int
	committed []int64
}

func (f *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if f.next >= len(f.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := f.messages[f.next]
	f.next++
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func newFakeConsumer(values ...string) (*OutbreakConsumer, *fakeReader) {
	reader := &fakeReader{}
	for i, v := range values {
		reader.messages = append(reader.messages, kafka.Message{Offset: int64(i), Value: []byte(v)})
	}
	return &OutbreakConsumer{reader: reader, log: zerolog.Nop()}, reader
}

func TestFetchLeavesValidMessageUncommitted(t *testing.T) {
	consumer, reader := newFakeConsumer(
		`{"species_id":"sp-1","species_name":"Meru Oak","disease_name":"rust","affected_count":9}`,
	)

	signal, msg, err := consumer.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if signal.SpeciesID != "sp-1" || signal.AffectedCount != 9 {
		t.Errorf("signal = %+v", signal)
	}

	// The offset must stay uncommitted until the caller has processed
	// the signal; a crash or failed create then gets a redelivery.
	if len(reader.committed) != 0 {
		t.Fatalf("committed offsets %v before Commit was called", reader.committed)
	}

	if err := consumer.Commit(context.Background(), msg); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 0 {
		t.Errorf("committed offsets = %v, want [0]", reader.committed)
	}
}

func TestFetchCommitsAndSkipsBadMessages(t *testing.T) {
	consumer, reader := newFakeConsumer(
		`{not json`,
		`{"species_name":"Meru Oak","affected_count":3}`, // missing species_id and disease
		`{"species_id":"sp-2","species_name":"Baobab","disease_name":"blight","affected_count":7}`,
	)

	signal, _, err := consumer.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if signal.SpeciesID != "sp-2" {
		t.Errorf("signal = %+v, want the first well-formed message", signal)
	}

	// The two poison pills are committed so they never wedge the
	// partition; the valid message is not.
	if len(reader.committed) != 2 || reader.committed[0] != 0 || reader.committed[1] != 1 {
		t.Errorf("committed offsets = %v, want [0 1]", reader.committed)
	}
}

func TestFetchPropagatesReaderError(t *testing.T) {
	consumer, _ := newFakeConsumer()
	if _, _, err := consumer.Fetch(context.Background()); err == nil {
		t.Error("Fetch() error = nil, want reader error")
	}
}
