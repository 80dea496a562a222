package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyonions/kernel/pkg/bus"
	"golang.org/x/sync/errgroup"
)

// State is a child's position in the crash-only state machine:
// Starting -> Running -> (Crashed | Stopping) -> Stopped.
type State string

const (
	Starting State = "starting"
	Running  State = "running"
	Crashed  State = "crashed"
	Stopping State = "stopping"
	Stopped  State = "stopped"
)

// ChildFunc is a supervised task. It must return promptly when ctx is
// done. A nil return means graceful, intentional completion (no restart);
// a non-nil return is treated as a crash and triggers a restart.
type ChildFunc func(ctx context.Context) error

// ChildSpec names a supervised task and its backoff policy.
type ChildSpec struct {
	Name        string
	Run         ChildFunc
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

type childState struct {
	mu       sync.Mutex
	spec     ChildSpec
	state    State
	restarts int
	backoff  *Backoff
}

func (c *childState) snapshot() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.restarts
}

func (c *childState) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Supervisor runs a set of named children, restarting crashed ones under
// a decorrelated-jitter backoff and coordinating shutdown via a single
// CancelToken shared by all children.
type Supervisor struct {
	mu       sync.Mutex
	children map[string]*childState
	token    *CancelToken
	bus      *bus.Bus // optional; publishes ServiceCrashed/Restart when set
	grace    time.Duration
}

// New constructs a Supervisor. eventBus may be nil to disable bus
// reporting; grace bounds how long Shutdown waits for children to reach
// Stopped before giving up.
func New(eventBus *bus.Bus, grace time.Duration) *Supervisor {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Supervisor{
		children: make(map[string]*childState),
		bus:      eventBus,
		grace:    grace,
	}
}

// Run starts every spec as a supervised child and blocks until every
// child has stopped: either it returned nil (graceful completion) or ctx
// was cancelled. Panics in a ChildFunc become crashes and never
// propagate out of Run.
func (s *Supervisor) Run(ctx context.Context, specs []ChildSpec) error {
	s.mu.Lock()
	s.token = NewCancelToken(ctx)
	token := s.token
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(token.Context())
	for _, spec := range specs {
		spec := spec
		cs := &childState{
			spec:    spec,
			state:   Starting,
			backoff: NewBackoff(spec.Name, spec.BackoffBase, spec.BackoffCap),
		}
		s.mu.Lock()
		s.children[spec.Name] = cs
		s.mu.Unlock()

		g.Go(func() error {
			s.superviseChild(gctx, cs)
			return nil
		})
	}
	return g.Wait()
}

func (s *Supervisor) superviseChild(ctx context.Context, cs *childState) {
	for {
		if ctx.Err() != nil {
			cs.setState(Stopped)
			return
		}
		cs.setState(Starting)
		err := s.runOnce(ctx, cs)

		if ctx.Err() != nil {
			cs.setState(Stopped)
			return
		}
		if err == nil {
			cs.backoff.ResetOnSuccess()
			cs.setState(Stopped)
			return
		}

		cs.mu.Lock()
		cs.state = Crashed
		cs.restarts++
		cs.mu.Unlock()

		if s.bus != nil {
			s.bus.Publish(bus.ServiceCrashedEvent(cs.spec.Name, err.Error()))
		}

		delay := cs.backoff.Next()
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			cs.setState(Stopped)
			return
		}

		if s.bus != nil {
			s.bus.Publish(bus.RestartEvent(cs.spec.Name, "backoff elapsed"))
		}
	}
}

// runOnce executes one attempt of a child's ChildFunc, converting a panic
// at the task boundary into a Crashed-equivalent error. Panics never
// propagate past this boundary.
func (s *Supervisor) runOnce(ctx context.Context, cs *childState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in child %q: %v", cs.spec.Name, r)
		}
	}()
	cs.setState(Running)
	return cs.spec.Run(ctx)
}

// Shutdown triggers the shared CancelToken and waits up to the
// configured grace period for every child to reach Stopped. It returns
// the names of children still not Stopped when the grace period elapsed;
// an empty slice means a clean shutdown.
func (s *Supervisor) Shutdown(ctx context.Context) []string {
	s.mu.Lock()
	token := s.token
	children := make([]*childState, 0, len(s.children))
	for _, cs := range s.children {
		children = append(children, cs)
	}
	s.mu.Unlock()

	if token != nil {
		token.Trigger()
	}

	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		overrun := pendingNames(children)
		if len(overrun) == 0 {
			return nil
		}
		select {
		case <-deadline.C:
			return overrun
		case <-ctx.Done():
			return overrun
		case <-ticker.C:
		}
	}
}

func pendingNames(children []*childState) []string {
	var out []string
	for _, cs := range children {
		if st, _ := cs.snapshot(); st != Stopped {
			out = append(out, cs.spec.Name)
		}
	}
	return out
}

// Snapshot returns the current state of every child, keyed by name.
func (s *Supervisor) Snapshot() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.children))
	for name, cs := range s.children {
		st, _ := cs.snapshot()
		out[name] = st
	}
	return out
}
