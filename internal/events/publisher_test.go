package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs   []skafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaProducerWithWriter(w, zap.NewNop())

	err := p.Publish(context.Background(), "42", Envelope{Type: TypeSignupCreated, Data: json.RawMessage(`{"position":3}`)})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"type":"signup.created","data":{"position":3}}`, string(w.msgs[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaProducerPropagatesWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaProducerWithWriter(w, zap.NewNop())

	assert.Error(t, p.Publish(context.Background(), "k", map[string]string{"a": "b"}))
	assert.Error(t, p.Publish(context.Background(), "k", make(chan int)))
}
