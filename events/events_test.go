package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSPublisher_Publish(t *testing.T) {
	rec := &recordingConn{}
	p := newNATSPublisher(rec, "vault.", slog.Default())

	event := ConversationIndexed{ConversationID: "c1", Model: "embeddinggemma", Chunks: 3, Action: "imported"}
	require.NoError(t, p.Publish(context.Background(), event))
	require.NoError(t, p.Publish(context.Background(), ImportCompleted{ImportID: "i1", Total: 2, Resumed: 2}))

	assert.Equal(t, []string{"vault.conversation.indexed", "vault.import.completed"}, rec.subjects)

	var decoded ConversationIndexed
	require.NoError(t, json.Unmarshal(rec.payloads[0], &decoded))
	assert.Equal(t, "c1", decoded.ConversationID)
	assert.Equal(t, 3, decoded.Chunks)

	var completed map[string]any
	require.NoError(t, json.Unmarshal(rec.payloads[1], &completed))
	assert.Equal(t, float64(2), completed["resumed"])

	require.NoError(t, p.Close())
	assert.True(t, rec.drained)
}

func TestNATSPublisher_DefaultPrefixAndErrors(t *testing.T) {
	rec := &recordingConn{err: errors.New("connection closed")}
	p := newNATSPublisher(rec, "", slog.Default())
	assert.Equal(t, DefaultPrefix, p.prefix)

	err := p.Publish(context.Background(), ImportCompleted{})
	assert.ErrorContains(t, err, "chatvault.import.completed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, ImportCompleted{}), context.Canceled)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), ImportCompleted{}))
	assert.NoError(t, p.Close())
}

func TestNATSPublisher_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	received := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("chatvault-test.>", received)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	p, err := NewNATSPublisher(url, "", "chatvault-test", slog.Default())
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Publish(context.Background(), ConversationIndexed{ConversationID: "c1"}))

	select {
	case msg := <-received:
		assert.Equal(t, "chatvault-test.conversation.indexed", msg.Subject)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}
