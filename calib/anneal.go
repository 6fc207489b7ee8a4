package calib

import (
	"context"
	"iter"
	"math"
	"time"
)

// Stop reasons reported in Result.StopReason
const (
	StopIterations = "iterations exhausted"
	StopCancelled  = "context cancelled"
	StopTimeBudget = "time budget exhausted"
	StopConsumer   = "consumer stopped"
	StopPending    = "not started"
)

// EventKind classifies search events
type EventKind int

const (
	EventInitial EventKind = iota
	EventImprovement
	EventRestart
)

func (k EventKind) String() string {
	switch k {
	case EventInitial:
		return "initial"
	case EventImprovement:
		return "new best"
	case EventRestart:
		return "restart"
	}
	return "unknown"
}

// Event is emitted for the initial state, every new best and every restart.
// Iteration is the zero-based loop index; the initial event uses -1.
type Event struct {
	Kind      EventKind
	Iteration int
	Energy    float64   // best energy after this event
	Transform Transform // best transform after this event
	Current   Transform // current state after this event
}

// Result contains the outcome of a search
type Result struct {
	Best         Transform     `json:"best"`
	Energy       float64       `json:"energy"`
	Iterations   int           `json:"iterations"`
	Restarts     int           `json:"restarts"`
	Improvements int           `json:"improvements"`
	StopReason   string        `json:"stopReason"`
	Duration     time.Duration `json:"duration"`
	Refined      bool          `json:"refined,omitempty"`
}

// searchState is owned exclusively by one running search
type searchState struct {
	current    Transform
	best       Transform
	bestEnergy float64
	iteration  int
	stagnant   int
}

// Search is a single annealing run. Its event sequence can be consumed once.
type Search struct {
	c       *Calibrator
	ctx     context.Context
	started bool
	result  Result
}

// Search prepares an annealing run. Nothing happens until Events is ranged over.
func (c *Calibrator) Search(ctx context.Context) *Search {
	return &Search{
		c:      c,
		ctx:    ctx,
		result: Result{Best: c.InitialTransform(), Energy: math.Inf(1), StopReason: StopPending},
	}
}

// Events runs the search lazily, yielding progress as it goes. The sequence is
// finite and not restartable: ranging over it a second time yields nothing.
// Breaking out early terminates the search with StopConsumer.
func (s *Search) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if s.started {
			return
		}
		s.started = true
		s.result = s.c.anneal(s.ctx, yield)
	}
}

// Done reports whether the event sequence has been ranged over
func (s *Search) Done() bool {
	return s.started
}

// Result returns the outcome once Events has been consumed. Before that it
// reports StopPending with the initial transform and an infinite energy.
func (s *Search) Result() Result {
	return s.result
}

// Run performs a full search, followed by refinement when configured
func (c *Calibrator) Run(ctx context.Context) Result {
	s := c.Search(ctx)
	for range s.Events() {
	}
	res := s.Result()

	if c.cfg.Refine {
		res = c.Polish(res)
	}
	return res
}

func (c *Calibrator) anneal(ctx context.Context, yield func(Event) bool) Result {
	started := time.Now()
	rng := c.newRand()
	k := c.cfg.Iterations

	start := c.InitialTransform()
	st := searchState{current: start, best: start, bestEnergy: c.Energy(start)}
	res := Result{StopReason: StopIterations}

	finish := func(reason string) Result {
		res.Best = st.best
		res.Energy = st.bestEnergy
		res.Iterations = st.iteration
		res.Duration = time.Since(started)
		if reason != "" {
			res.StopReason = reason
		}
		c.logger.Infow("search finished",
			"reason", res.StopReason,
			"iterations", res.Iterations,
			"restarts", res.Restarts,
			"energy", res.Energy,
			"transform", res.Best.String())
		return res
	}

	c.logger.Debugw("search started", "energy", st.bestEnergy, "transform", start.String(), "iterations", k)
	if !yield(Event{Kind: EventInitial, Iteration: -1, Energy: st.bestEnergy, Transform: st.best, Current: st.current}) {
		return finish(StopConsumer)
	}

	var deadline time.Time
	if c.cfg.TimeBudget > 0 {
		deadline = started.Add(c.cfg.TimeBudget)
	}

	for i := 0; i < k; i++ {
		if ctx.Err() != nil {
			return finish(StopCancelled)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return finish(StopTimeBudget)
		}
		st.iteration = i + 1

		temp := 1 - float64(i+1)/float64(k)

		axis := c.axes[rng.Intn(len(c.axes))]
		delta := (rng.Float64() - 0.5) * 2 * c.cfg.Steps.scale(axis, c.cfg.Plane) * temp
		candidate := st.current.WithMutated(axis, delta)
		energy := c.Energy(candidate)

		// Strictly lower only: equal energy counts as stagnation
		if energy < st.bestEnergy {
			st.best = candidate
			st.bestEnergy = energy
			st.current = candidate
			st.stagnant = 0
			res.Improvements++
			c.logger.Debugw("new best", "iteration", i, "energy", energy, "transform", candidate.String())
			if !yield(Event{Kind: EventImprovement, Iteration: i, Energy: energy, Transform: st.best, Current: st.current}) {
				return finish(StopConsumer)
			}
			continue
		}

		if temp <= 0 {
			continue
		}

		st.stagnant++
		if c.cfg.RestartAfter > 0 && st.stagnant >= c.cfg.RestartAfter {
			st.current = st.best
			st.stagnant = 0
			res.Restarts++
			c.logger.Debugw("restarting from best", "iteration", i, "idle", c.cfg.RestartAfter, "energy", st.bestEnergy)
			if !yield(Event{Kind: EventRestart, Iteration: i, Energy: st.bestEnergy, Transform: st.best, Current: st.current}) {
				return finish(StopConsumer)
			}
			continue
		}

		// Metropolis criterion, measured against the best energy
		if rng.Float64() <= math.Exp(-(energy-st.bestEnergy)/temp) {
			st.current = candidate
		}
	}

	return finish("")
}
