package kvb

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, time.Hour, time.Hour)
}

func TestScanStateRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	state, err := bus.GetScanState(ctx, "scan-1")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, bus.SetScanState(ctx, "scan-1", ScanState{Status: "running"}))

	state, err = bus.GetScanState(ctx, "scan-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "running", state.Status)
}

func TestOutputLinesRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.PushOutputLine(ctx, "scan-1", "line one"))
	require.NoError(t, bus.PushOutputLine(ctx, "scan-1", "line two"))

	lines, err := bus.ReadOutputLines(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "line two"}, lines)

	require.NoError(t, bus.DeleteOutputLines(ctx, "scan-1"))
	lines, err = bus.ReadOutputLines(ctx, "scan-1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestResultsRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	raw, err := bus.GetResults(ctx, "scan-1")
	require.NoError(t, err)
	assert.Nil(t, raw)

	require.NoError(t, bus.SetResults(ctx, "scan-1", []byte(`{"hosts":[]}`)))
	raw, err = bus.GetResults(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, `{"hosts":[]}`, string(raw))

	require.NoError(t, bus.DeleteResults(ctx, "scan-1"))
	raw, err = bus.GetResults(ctx, "scan-1")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestProgressRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	progress, err := bus.GetProgress(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "", progress)

	require.NoError(t, bus.SetProgress(ctx, "scan-1", "42"))
	progress, err = bus.GetProgress(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "42", progress)
}

func TestChannelIdentifiesOwnChannels(t *testing.T) {
	assert.Equal(t, "progress", Channel("scan-1", "scan-1:progress"))
	assert.Equal(t, "status", Channel("scan-1", "scan-1:status"))
	assert.Equal(t, "output", Channel("scan-1", "scan-1"))
	assert.Equal(t, "unknown", Channel("scan-1", "scan-2"))
}

func TestSubscribeProgressReceivesPublishedValue(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	sub := bus.SubscribeProgress(ctx, "scan-1")
	defer sub.Close()

	// miniredis delivers pub/sub synchronously on Publish, but the
	// subscription's internal channel still needs a moment to register.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.PublishProgress(ctx, "scan-1", "50"))

	msg, err := sub.Receive(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "50", msg.Payload)
}

func TestReceiveTimesOutWithoutMessage(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	sub := bus.SubscribeProgress(ctx, "scan-1")
	defer sub.Close()

	msg, err := sub.Receive(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}
