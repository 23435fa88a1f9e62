package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("broker down") }

func TestKafkaPublisherKeysByConsultation(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)
	e := New(NoteGenerated, uuid.New())

	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, e.ConsultationID.String(), string(w.msgs[0].Key))
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, NoteGenerated, decoded.Type)
}

func TestMultiJoinsErrors(t *testing.T) {
	w := &fakeWriter{}
	m := Multi{failing{}, NewKafkaPublisher(w)}

	err := m.Publish(context.Background(), New(TriageUpdated, uuid.New()))

	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, w.msgs, 1)
}

func TestEmitSwallowsErrors(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), failing{}, New(ConsultationFailed, uuid.New()))
		Emit(context.Background(), nil, New(ConsultationFailed, uuid.New()))
	})
}
