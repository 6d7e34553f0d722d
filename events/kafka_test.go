package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	fail     int
	err      error
	attempts int
	written  []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.attempts++
	if f.attempts <= f.fail {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestKafkaSink(w *fakeWriter, attempts int) *KafkaSink {
	k := newKafkaSink(w, KafkaConfig{MaxAttempts: attempts})
	k.backoff = time.Millisecond
	return k
}

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	k := newTestKafkaSink(w, 3)
	ev := sampleEvents()[1]

	assert.NoError(t, k.Publish(context.Background(), ev))
	assert.Equal(t, 1, len(w.written))

	msg := w.written[0]
	check.Equal(t, "1", string(msg.Key))
	check.Equal(t, time.Unix(ev.Timestamp, 0).UTC(), msg.Time)
	check.Equal(t, []kafka.Header{
		{Key: "event_type", Value: []byte("BidPlaced")},
		{Key: "seq", Value: []byte("2")},
	}, msg.Headers)

	decoded, err := DecodeEvent(msg.Value)
	assert.NoError(t, err)
	check.Equal(t, ev, decoded)

	assert.NoError(t, k.Close())
	check.True(t, w.closed)
}

func TestKafkaSink_RetriesTransientErrors(t *testing.T) {
	w := &fakeWriter{fail: 2, err: errors.New("leader not available")}
	k := newTestKafkaSink(w, 3)

	assert.NoError(t, k.Publish(context.Background(), sampleEvents()[0]))
	check.Equal(t, 3, w.attempts)
	check.Equal(t, 1, len(w.written))
}

func TestKafkaSink_GivesUp(t *testing.T) {
	brokerDown := errors.New("broker down")
	w := &fakeWriter{fail: 10, err: brokerDown}
	k := newTestKafkaSink(w, 3)

	err := k.Publish(context.Background(), sampleEvents()[0])
	check.True(t, errors.Is(err, brokerDown))
	check.Equal(t, 3, w.attempts)
	check.Equal(t, 0, len(w.written))
}

func TestKafkaSink_StopsOnCanceledContext(t *testing.T) {
	w := &fakeWriter{fail: 10, err: errors.New("broker down")}
	k := newTestKafkaSink(w, 5)
	k.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := k.Publish(ctx, sampleEvents()[0])
	check.True(t, errors.Is(err, context.Canceled))
	check.Equal(t, 1, w.attempts)
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "ledger"})
	check.NotNil(t, err)
	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	check.NotNil(t, err)

	k, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "ledger"})
	assert.NoError(t, err)
	check.Equal(t, 3, k.maxAttempts)
	check.NoError(t, k.Close())

	var nilSink *KafkaSink
	check.NoError(t, nilSink.Close())
}
