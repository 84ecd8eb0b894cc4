package gateway

import (
	"context"
	"testing"

	"log/slog"

	"chat-presence/domain"
	"chat-presence/domain/event"
	chaterrors "chat-presence/errors"

	"github.com/stretchr/testify/require"
)

func TestClient_ConsumeReportsSlowConsumerOnFullQueue(t *testing.T) {
	req := require.New(t)

	// A client whose write pump never runs: the queue only fills up
	client := newClient(nil, domain.Participant{ID: "u-1", Name: "Slow"},
		slog.Default(), nil, nil, newValidator())

	evt := event.TypingUpdate{Room: "general", Typing: []string{"Bob"}}
	for i := 0; i < sendBufferSize; i++ {
		req.NoError(client.Consume(context.Background(), evt))
	}

	// The next event does not block; it reports the overflow instead
	err := client.Consume(context.Background(), evt)
	req.ErrorIs(err, chaterrors.ErrSlowConsumer)
}
