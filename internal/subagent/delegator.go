// Package subagent runs delegated specialist workflows. The main assistant
// hands off a task (document generation, schedule optimization, research)
// and relays the sub-agent's progress events into its own stream.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grandcafe/concierge/internal/observability"
	"github.com/grandcafe/concierge/internal/ratelimit"
	"github.com/grandcafe/concierge/pkg/models"
)

var (
	// ErrDelegationActive rejects a second delegation while one is still
	// running in the same conversation.
	ErrDelegationActive = errors.New("a delegated task is already running in this conversation")

	// ErrUnknownAgent means no runner is registered for the agent type.
	ErrUnknownAgent = errors.New("unknown sub-agent")

	// ErrRateLimited rejects a delegation when the user has exhausted
	// their per-minute delegation budget.
	ErrRateLimited = errors.New("delegation rate limit exceeded")
)

// DefaultTimeout bounds one delegated run.
const DefaultTimeout = 45 * time.Second

// Task is one delegated unit of work.
type Task struct {
	Agent          models.SubAgentType
	Instruction    string
	ConversationID string
	UserID         string
	Role           models.Role
}

// Result is what a runner produced on success.
type Result struct {
	Summary   string
	Artifacts []models.Artifact
}

// Runner executes one sub-agent type. Implementations report intermediate
// steps through progress and return the final result; the delegator owns
// the terminal event.
type Runner interface {
	Run(ctx context.Context, task Task, progress func(step string)) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task Task, progress func(step string)) (*Result, error)

func (f RunnerFunc) Run(ctx context.Context, task Task, progress func(step string)) (*Result, error) {
	return f(ctx, task, progress)
}

// Delegator dispatches tasks to registered runners and normalizes their
// event streams: every run emits at least one progress event, then exactly
// one terminal event, then the channel closes. A panicking or timed-out
// runner still terminates cleanly.
type Delegator struct {
	runners map[models.SubAgentType]Runner
	timeout time.Duration
	limiter *ratelimit.Limiter
	log     *observability.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	active map[string]struct{}
}

// NewDelegator builds a delegator over the given runners.
func NewDelegator(runners map[models.SubAgentType]Runner, timeout time.Duration, log *observability.Logger, metrics *observability.Metrics) *Delegator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Delegator{
		runners: runners,
		timeout: timeout,
		log:     log,
		metrics: metrics,
		active:  make(map[string]struct{}),
	}
}

// SetLimiter installs a per-user delegation rate limiter. A nil limiter
// disables the check.
func (d *Delegator) SetLimiter(l *ratelimit.Limiter) {
	d.limiter = l
}

// Active reports whether the conversation has a running delegation.
func (d *Delegator) Active(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[conversationID]
	return ok
}

// Delegate starts the task and returns its event stream. The stream is
// buffered; a slow reader delays the runner rather than losing events.
func (d *Delegator) Delegate(ctx context.Context, task Task) (<-chan models.SubAgentEvent, error) {
	runner, ok := d.runners[task.Agent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, task.Agent)
	}

	if d.limiter != nil && !d.limiter.Allow(task.UserID) {
		if d.metrics != nil {
			d.metrics.RateLimited.WithLabelValues(ratelimit.ScopeDelegation).Inc()
		}
		wait := d.limiter.WaitTime(task.UserID)
		return nil, fmt.Errorf("%w, try again in %s", ErrRateLimited, wait.Round(time.Second))
	}

	d.mu.Lock()
	if _, busy := d.active[task.ConversationID]; busy {
		d.mu.Unlock()
		return nil, ErrDelegationActive
	}
	d.active[task.ConversationID] = struct{}{}
	d.mu.Unlock()

	events := make(chan models.SubAgentEvent, 16)
	go d.run(ctx, runner, task, events)
	return events, nil
}

func (d *Delegator) run(ctx context.Context, runner Runner, task Task, events chan<- models.SubAgentEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)

	terminal := false
	emit := func(ev models.SubAgentEvent) {
		if terminal {
			return
		}
		if ev.Terminal() {
			terminal = true
		}
		ev.Agent = task.Agent
		ev.Task = task.Instruction
		events <- ev
	}

	defer func() {
		// A panicking runner must not take the whole turn down; it just
		// fails this delegation.
		if r := recover(); r != nil {
			d.log.Error(ctx, "sub-agent panicked", "agent", string(task.Agent), "panic", fmt.Sprint(r))
			fail := false
			emit(models.SubAgentEvent{Success: &fail, Error: fmt.Sprintf("internal error: %v", r)})
		}
		cancel()
		close(events)

		d.mu.Lock()
		delete(d.active, task.ConversationID)
		d.mu.Unlock()
	}()

	// First progress event is unconditional so the client always sees the
	// delegation start before any outcome.
	emit(models.SubAgentEvent{Step: "starting"})

	result, err := runner.Run(ctx, task, func(step string) {
		emit(models.SubAgentEvent{Step: step})
	})

	status := "success"
	switch {
	case err != nil:
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", d.timeout)
		}
		d.log.Warn(ctx, "sub-agent failed", "agent", string(task.Agent), "error", err)
		fail := false
		emit(models.SubAgentEvent{Success: &fail, Error: err.Error()})
	default:
		success := true
		ev := models.SubAgentEvent{Success: &success}
		if result != nil {
			ev.Step = result.Summary
			ev.Artifacts = result.Artifacts
		}
		emit(ev)
	}

	if d.metrics != nil {
		d.metrics.SubAgentRuns.WithLabelValues(string(task.Agent), status).Inc()
	}
}
