package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeveda/records-api/pkg/messaging"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := NewClient(ctx, Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	broker := NewRedisBroker(client, zerolog.Nop())
	msgs, err := broker.Subscribe(ctx, "codeveda.events")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "codeveda.events", messaging.Message{
		ID:   "evt-1",
		Type: "visit.created",
	}))

	select {
	case raw := <-msgs:
		var got messaging.Message
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "visit.created", got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "://nope"})
	assert.Error(t, err)
}

func TestPublishFailsWhenServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{URL: "redis://" + mr.Addr(), MaxRetries: -1})
	require.NoError(t, err)
	defer client.Close()

	broker := NewRedisBroker(client, zerolog.Nop())
	mr.Close()

	assert.Error(t, broker.Publish(context.Background(), "codeveda.events", map[string]string{"a": "b"}))
}
