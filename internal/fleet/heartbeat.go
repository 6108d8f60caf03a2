// Package fleet publishes a periodic heartbeat to Redis so that multiple
// gateway instances behind the same backend can be observed as one fleet.
// No session state lives here or in Redis: every bridge session is owned
// entirely by the goroutine that accepted its connection, so losing Redis
// only loses visibility, never correctness.
//
// Adapted from the teacher's bus.Service: the same gobreaker-wrapped Redis
// client and "nil client means single-instance mode, degrade silently"
// pattern, narrowed from room pub/sub down to a single heartbeat channel.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ircbridge/gateway/internal/logging"
	"github.com/ircbridge/gateway/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// heartbeatChannel is the single Redis pub/sub channel every instance
// publishes its heartbeat to.
const heartbeatChannel = "ircbridge:fleet"

// Heartbeat is the payload published on every tick.
type Heartbeat struct {
	InstanceID     string `json:"instance_id"`
	ActiveSessions int    `json:"active_sessions"`
	TimestampUnix  int64  `json:"ts"`
}

// Publisher periodically reports this instance's load to the fleet. A nil
// *redis.Client (addr == "") makes every method a no-op, matching
// single-instance deployments that never configured Redis.
type Publisher struct {
	client     *redis.Client
	cb         *gobreaker.CircuitBreaker
	instanceID string
}

// NewPublisher connects to Redis if addr is non-empty. An empty addr
// returns a Publisher that degrades every call to a no-op.
func NewPublisher(addr, password, instanceID string) (*Publisher, error) {
	if addr == "" {
		return &Publisher{instanceID: instanceID}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("fleet: connecting to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "fleet-redis",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("fleet-redis").Set(stateVal)
		},
	}

	return &Publisher{
		client:     client,
		cb:         gobreaker.NewCircuitBreaker(st),
		instanceID: instanceID,
	}, nil
}

// Publish sends one heartbeat. Errors are logged and swallowed: a fleet
// heartbeat is an operational nicety, never load-bearing for a session.
func (p *Publisher) Publish(ctx context.Context, activeSessions int, nowUnix int64) {
	if p == nil || p.client == nil {
		return
	}

	_, err := p.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(Heartbeat{
			InstanceID:     p.instanceID,
			ActiveSessions: activeSessions,
			TimestampUnix:  nowUnix,
		})
		if err != nil {
			return nil, err
		}
		return nil, p.client.Publish(ctx, heartbeatChannel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.FleetHeartbeats.WithLabelValues("breaker_open").Inc()
			return
		}
		metrics.FleetHeartbeats.WithLabelValues("error").Inc()
		logging.Warn(ctx, "fleet heartbeat publish failed", zap.Error(err))
		return
	}
	metrics.FleetHeartbeats.WithLabelValues("ok").Inc()
}

// Run publishes a heartbeat on every tick of interval until ctx is done.
// countFn is called fresh on each tick so the caller can report live state
// (e.g. an atomic counter of active sessions) rather than a stale snapshot.
func (p *Publisher) Run(ctx context.Context, interval time.Duration, countFn func() int) {
	if p == nil || p.client == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			p.Publish(ctx, countFn(), t.Unix())
		}
	}
}

// RedisClient exposes the underlying connection for readiness probes. It
// returns nil for a single-instance Publisher that never dialed Redis.
func (p *Publisher) RedisClient() *redis.Client {
	if p == nil {
		return nil
	}
	return p.client
}

// Close releases the underlying Redis connection, if any.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// NewBackendDialBreaker returns a circuit breaker for wrapping backend
// dial attempts (the login call is not wrapped), keyed separately from the fleet Redis breaker so
// the two failure domains never influence each other's state.
func NewBackendDialBreaker() *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:        "backend-dial",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("backend-dial").Set(stateVal)
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}
