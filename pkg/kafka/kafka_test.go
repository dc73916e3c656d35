package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{
		messages: []kafka.Message{
			{Offset: 1, Value: []byte("ok")},
			{Offset: 2, Value: []byte("fail")},
			{Offset: 3, Value: []byte("ok")},
		},
		cancel: cancel,
	}
	var seen []string
	c := newConsumer(r, "test", func(_ context.Context, _ []byte, value []byte) error {
		seen = append(seen, string(value))
		if string(value) == "fail" {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"ok", "fail", "ok"}, seen)
	assert.Equal(t, []int64{1, 3}, r.committed)
	assert.True(t, r.closed)
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestProducerEncodesIndexEvents(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: slog.Default()}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		Key:   "PMC1",
		Value: IndexEvent{PaperID: "PMC1", TermsAdded: 2, LexiconShards: []int{3}, IndexShards: []int{7, 9}, IndexedAt: at},
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "PMC1", string(w.messages[0].Key))

	got, err := DecodeJSON[IndexEvent](w.messages[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "PMC1", got.PaperID)
	assert.Equal(t, []int{7, 9}, got.IndexShards)
	assert.True(t, at.Equal(got.IndexedAt))
}

func TestProducerWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: boom}, logger: slog.Default()}
	err := p.Publish(context.Background(), Event{Key: "k", Value: 1})
	assert.ErrorIs(t, err, boom)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[IndexEvent]([]byte("{"))
	assert.Error(t, err)
}

func TestProducerPublishRawKeepsBytes(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: slog.Default()}
	raw := []byte(`{"paper_id":"PMC2"}`)
	require.NoError(t, p.PublishRaw(context.Background(), "PMC2.xml.json", raw))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "PMC2.xml.json", string(w.messages[0].Key))
	assert.Equal(t, raw, w.messages[0].Value)
}
