package fleet

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	p, err := NewPublisher(mr.Addr(), "", "instance-1")
	require.NoError(t, err)

	return p, mr
}

func TestNewPublisher_NoAddrIsNoop(t *testing.T) {
	p, err := NewPublisher("", "", "instance-1")
	require.NoError(t, err)

	// Should not panic and should not block.
	p.Publish(context.Background(), 3, time.Now().Unix())
	assert.NoError(t, p.Close())
}

func TestPublish_SendsHeartbeat(t *testing.T) {
	p, mr := newTestPublisher(t)
	defer mr.Close()
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	sub := p.client.Subscribe(ctx, heartbeatChannel)
	defer func() { _ = sub.Close() }()
	time.Sleep(50 * time.Millisecond)

	p.Publish(ctx, 7, 1234)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var hb Heartbeat
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &hb))
	assert.Equal(t, "instance-1", hb.InstanceID)
	assert.Equal(t, 7, hb.ActiveSessions)
	assert.Equal(t, int64(1234), hb.TimestampUnix)
}

func TestRun_PublishesOnTick(t *testing.T) {
	p, mr := newTestPublisher(t)
	defer mr.Close()
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	sub := p.client.Subscribe(ctx, heartbeatChannel)
	defer func() { _ = sub.Close() }()
	time.Sleep(50 * time.Millisecond)

	runCtx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	go p.Run(runCtx, 30*time.Millisecond, func() int { return 2 })

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var hb Heartbeat
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &hb))
	assert.Equal(t, 2, hb.ActiveSessions)
}

func TestNewBackendDialBreaker(t *testing.T) {
	cb := NewBackendDialBreaker()
	require.NotNil(t, cb)

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	assert.NoError(t, err)
}
