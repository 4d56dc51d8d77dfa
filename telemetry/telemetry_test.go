package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport keeps events instead of sending them.
type recordingTransport struct {
	events []*sentry.Event
}

func (t *recordingTransport) Configure(sentry.ClientOptions)        {}
func (t *recordingTransport) SendEvent(e *sentry.Event)             { t.events = append(t.events, e) }
func (t *recordingTransport) Flush(_ time.Duration) bool            { return true }
func (t *recordingTransport) FlushWithContext(context.Context) bool { return true }
func (t *recordingTransport) Close()                                {}

func TestInit_NoDSN(t *testing.T) {
	flush := Init(Config{}, nil)
	require.NotNil(t, flush)
	flush()
}

func TestCaptureError(t *testing.T) {
	transport := &recordingTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:       "https://public@sentry.example.com/1",
		Transport: transport,
	})
	require.NoError(t, err)

	hub := sentry.NewHub(client, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), hub)

	CaptureError(ctx, "import", errors.New("store unavailable"))
	CaptureError(ctx, "import", nil)

	require.Len(t, transport.events, 1)
	assert.Equal(t, "import", transport.events[0].Tags["operation"])
	require.NotEmpty(t, transport.events[0].Exception)
	assert.Equal(t, "store unavailable", transport.events[0].Exception[0].Value)
}
