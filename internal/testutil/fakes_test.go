package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogbridge/fogbridge/domain/ports"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"ic/esp32/#", "ic/esp32/node1", true},
		{"ic/esp32/#", "ic/esp32/node1/humidity", true},
		{"ic/esp32/#", "ic/esp32", true},
		{"ic/esp32/#", "ic/fog/processed", false},
		{"ic/+/humidity", "ic/node1/humidity", true},
		{"ic/+/humidity", "ic/node1/temp", false},
		{"ic/esp32", "ic/esp32", true},
		{"ic/esp32", "ic/esp32/x", false},
		{"#", "anything/at/all", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TopicMatches(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestTransport_DeliverAndPublish(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()
	require.Error(t, tr.Subscribe(ctx, "a/#", 0, func(ports.Message) {}))
	require.NoError(t, tr.Connect(ctx))

	var got []string
	require.NoError(t, tr.Subscribe(ctx, "a/#", 0, func(m ports.Message) { got = append(got, string(m.Payload)) }))

	assert.Equal(t, 1, tr.Deliver("a/b", "x"))
	assert.Equal(t, 0, tr.Deliver("b", "y"))
	assert.Equal(t, []string{"x"}, got)

	require.NoError(t, tr.Publish(ctx, ports.Message{Topic: "out", Payload: []byte("p")}))
	assert.Len(t, tr.Published(), 1)

	require.NoError(t, tr.Unsubscribe(ctx, "a/#"))
	assert.Empty(t, tr.Subscriptions())
}
