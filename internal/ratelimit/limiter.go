// Package ratelimit throttles how fast a single bridge session may issue
// flood-prone IRC commands. Every session gets its own set of counters;
// there is no cross-instance shared store, since the flood this guards
// against is a single client hammering a single session.
//
// Adapted from the teacher's ratelimit.RateLimiter: the same
// github.com/ulule/limiter/v3 rate-parsing and fail-open-on-store-error
// posture, narrowed from Redis-backed HTTP endpoint categories down to an
// in-memory, per-session command-class limiter.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/ircbridge/gateway/internal/metrics"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Class identifies a guarded IRC command family.
type Class string

const (
	ClassJoin    Class = "JOIN"
	ClassPrivmsg Class = "PRIVMSG"
	ClassNick    Class = "NICK"
)

// Limiter enforces one rate per command class for a single session. It is
// safe for concurrent use, though in practice a session's bridge goroutine
// is the only caller.
type Limiter struct {
	byClass map[Class]*limiter.Limiter
}

// Rates bundles the formatted rate strings for each guarded class, in
// github.com/ulule/limiter's "<limit>-<period>" syntax (e.g. "10-M").
type Rates struct {
	Join    string
	Privmsg string
	Nick    string
}

// New builds a Limiter backed by a fresh in-memory store. Each session
// owns its own Limiter so the store is never shared across connections.
func New(rates Rates) (*Limiter, error) {
	store := memory.NewStore()

	l := &Limiter{byClass: map[Class]*limiter.Limiter{}}

	specs := map[Class]string{
		ClassJoin:    rates.Join,
		ClassPrivmsg: rates.Privmsg,
		ClassNick:    rates.Nick,
	}
	for class, formatted := range specs {
		rate, err := limiter.NewRateFromFormatted(formatted)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: invalid rate for %s (%q): %w", class, formatted, err)
		}
		l.byClass[class] = limiter.New(store, rate)
	}

	return l, nil
}

// Allow reports whether a command of the given class may proceed for the
// named session. A store failure fails open, matching the teacher's
// "unavailable limiter should never itself take the service down" choice.
func (l *Limiter) Allow(ctx context.Context, sessionID string, class Class) bool {
	inst, ok := l.byClass[class]
	if !ok {
		return true
	}

	lc, err := inst.Get(ctx, sessionID+":"+string(class))
	if err != nil {
		return true
	}

	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues(string(class)).Inc()
		return false
	}
	return true
}
