package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"chat-relay/domain/event"
)

func newQueueOnlyClient(buffer int) *Client {
	return &Client{
		log:       slog.Default(),
		send:      make(chan []byte, buffer),
		sessionID: "sess-test",
	}
}

func TestClient_ConsumeEnqueuesSealedEnvelope(t *testing.T) {
	req := require.New(t)
	client := newQueueOnlyClient(4)

	// Given an envelope with a payload already sealed by the router
	payload, err := sonic.Marshal("user-a")
	req.NoError(err)
	envelope := event.Envelope{Event: event.Online, Payload: json.RawMessage(payload)}

	// When consuming it
	req.NoError(client.Consume(context.Background(), envelope))

	// Then the wire frame sits in the send queue, intact
	data := <-client.send
	var got event.Envelope
	req.NoError(sonic.Unmarshal(data, &got))
	req.Equal(event.Online, got.Event)

	var userID string
	req.NoError(sonic.Unmarshal(got.Payload, &userID))
	req.Equal("user-a", userID)
}

func TestClient_ConsumePreservesEnqueueOrder(t *testing.T) {
	req := require.New(t)
	client := newQueueOnlyClient(8)
	ctx := context.Background()

	req.NoError(client.Consume(ctx, event.Envelope{Event: event.Online}))
	req.NoError(client.Consume(ctx, event.Envelope{Event: event.GotMsg}))
	req.NoError(client.Consume(ctx, event.Envelope{Event: event.Offline}))

	// Then the queue drains in the order events were consumed
	for _, want := range []event.Name{event.Online, event.GotMsg, event.Offline} {
		var got event.Envelope
		req.NoError(sonic.Unmarshal(<-client.send, &got))
		req.Equal(want, got.Event)
	}
}

func TestClient_ConsumeAfterCloseFailsWithoutPanic(t *testing.T) {
	req := require.New(t)
	client := newQueueOnlyClient(4)
	ctx := context.Background()

	// Given the read pump already tore the client down
	client.closeSend()

	// Then a fan-out still holding this sink gets an error, not a panic
	// in the originating session's goroutine
	var err error
	req.NotPanics(func() {
		err = client.Consume(ctx, event.Envelope{Event: event.Online})
	})
	req.Error(err)
	req.Contains(err.Error(), "already closed")
}

func TestClient_CloseSendIsIdempotent(t *testing.T) {
	req := require.New(t)
	client := newQueueOnlyClient(4)

	// A disconnecting event and a transport error can both reach the
	// teardown path; the second close must be a no-op
	req.NotPanics(func() {
		client.closeSend()
		client.closeSend()
	})

	// The write pump sees the channel closed exactly once
	_, open := <-client.send
	req.False(open)
}

func TestClient_ConsumeRejectsWhenBufferFull(t *testing.T) {
	req := require.New(t)
	client := newQueueOnlyClient(1)
	ctx := context.Background()

	// Given a full send buffer
	req.NoError(client.Consume(ctx, event.Envelope{Event: event.Online}))

	// Then the next event is refused instead of blocking the fan-out
	err := client.Consume(ctx, event.Envelope{Event: event.Offline})
	req.Error(err)
	req.Contains(err.Error(), "send buffer full")
}
