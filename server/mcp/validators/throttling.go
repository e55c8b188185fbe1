package validators

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mcpwire/mcpwire/shared"
)

// Throttling limits the rate of messages per session using RPS (requests per
// second) and RPM (requests per minute) limiters. Messages arriving without
// a session share one anonymous bucket.
type Throttling struct {
	defaultRPS int
	defaultRPM int

	mu       sync.Mutex
	limiters map[string]*limiterPair
}

// limiterPair holds the RPS and RPM limiters for one session.
type limiterPair struct {
	rpsLimiter *rate.Limiter
	rpmLimiter *rate.Limiter
}

// NewThrottling creates a new throttling validator.
func NewThrottling(defaultRPS, defaultRPM int) *Throttling {
	return &Throttling{
		defaultRPS: defaultRPS,
		defaultRPM: defaultRPM,
		limiters:   make(map[string]*limiterPair),
	}
}

// getLimiters gets or creates the rate limiters for a session id.
func (t *Throttling) getLimiters(sessionID string) *limiterPair {
	t.mu.Lock()
	defer t.mu.Unlock()

	pair, ok := t.limiters[sessionID]
	if ok {
		return pair
	}
	pair = &limiterPair{}
	if t.defaultRPS > 0 {
		pair.rpsLimiter = rate.NewLimiter(rate.Limit(t.defaultRPS), t.defaultRPS)
	}
	if t.defaultRPM > 0 {
		// Convert RPM to a per-second rate with a burst of a full minute.
		pair.rpmLimiter = rate.NewLimiter(rate.Limit(t.defaultRPM)/60.0, t.defaultRPM)
	}
	t.limiters[sessionID] = pair
	return pair
}

// Forget drops the limiters for a closed session.
func (t *Throttling) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, sessionID)
}

// Validate implements the shared.MessageValidator interface.
func (t *Throttling) Validate(msg *shared.Message) error {
	pair := t.getLimiters(msg.SessionID)

	if pair.rpmLimiter != nil && !pair.rpmLimiter.Allow() {
		return errors.New("RPM throttling limit exceeded")
	}
	if pair.rpsLimiter != nil && !pair.rpsLimiter.Allow() {
		return errors.New("RPS throttling limit exceeded")
	}
	return nil
}
