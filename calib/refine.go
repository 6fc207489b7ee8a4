package calib

import (
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

// Refine polishes start with a Nelder-Mead search over the mutable axes.
// The returned transform is never worse than start.
func (c *Calibrator) Refine(start Transform) (Result, error) {
	startEnergy := c.Energy(start)
	out := Result{Best: start, Energy: startEnergy, StopReason: "refinement"}

	withParams := func(x []float64) Transform {
		t := start
		for i, axis := range c.axes {
			t = t.WithValue(axis, x[i])
		}
		return t
	}

	x0 := make([]float64, len(c.axes))
	for i, axis := range c.axes {
		x0[i] = start.Get(axis)
	}

	evals := c.cfg.RefineEvals
	if evals <= 0 {
		evals = 20000
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return c.Energy(withParams(x))
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: evals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 200,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if result == nil {
		return out, fmt.Errorf("refining transform: %w", err)
	}
	if err != nil {
		c.logger.Debugw("refinement stopped early", "status", result.Status.String(), "error", err)
	}

	out.Iterations = result.Stats.MajorIterations
	if result.F < startEnergy {
		out.Best = withParams(result.X)
		out.Energy = c.Energy(out.Best)
		out.Refined = true
	}
	return out, nil
}

// Polish refines a finished search result in place of its best transform when
// that lowers the energy. Cancelled and unstarted searches are returned unchanged.
func (c *Calibrator) Polish(res Result) Result {
	if res.StopReason == StopCancelled || res.StopReason == StopPending {
		return res
	}
	refined, err := c.Refine(res.Best)
	if err != nil {
		c.logger.Warnw("refinement failed, keeping annealing result", "error", err)
		return res
	}
	if refined.Refined && refined.Energy < res.Energy {
		c.logger.Infow("refinement improved transform", "before", res.Energy, "after", refined.Energy)
		res.Best = refined.Best
		res.Energy = refined.Energy
		res.Refined = true
	}
	return res
}
