package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/rewired-gh/loadforecast/internal/logger"
	"github.com/rewired-gh/loadforecast/internal/models"
)

// Prior variance of the trend rate and offset.
const trendPriorVariance = 25.0

// problem is the MAP objective over theta = [k, m, delta..., beta...]:
//
//	f = 1/(2n) * sum_i (g_i*(1+mult_i) + add_i - y_i)^2 + 1/(2n) * sum_j theta_j^2 / s_j^2
//
// with g the piecewise-linear trend and s_j the prior scale of parameter j.
type problem struct {
	flat      bool
	n         int
	changes   int
	d         *design
	t         []float64
	y         []float64
	hinge     []float64 // n x changes, (t_i - s_j)+
	penalty   []float64 // per theta entry, 1/s_j^2
	multCols  []bool
	residuals []float64
}

func newProblem(m *models.Model, d *design, t, y []float64) *problem {
	p := &problem{
		flat:    m.Growth == models.GrowthFlat,
		n:       len(y),
		changes: len(m.ChangepointsT),
		d:       d,
		t:       t,
		y:       y,
	}

	p.hinge = make([]float64, p.n*p.changes)
	for i, ti := range t {
		for j, s := range m.ChangepointsT {
			if ti > s {
				p.hinge[i*p.changes+j] = ti - s
			}
		}
	}

	p.penalty = make([]float64, 2+p.changes+d.cols)
	p.penalty[0] = 1 / trendPriorVariance
	p.penalty[1] = 1 / trendPriorVariance
	tau := m.ChangepointPriorScale
	for j := 0; j < p.changes; j++ {
		p.penalty[2+j] = 1 / (tau * tau)
	}
	p.multCols = make([]bool, d.cols)
	for j, f := range d.features {
		p.penalty[2+p.changes+j] = 1 / (f.prior * f.prior)
		p.multCols[j] = f.mode == models.ModeMultiplicative
	}
	p.residuals = make([]float64, p.n)
	return p
}

func (p *problem) dim() int {
	return 2 + p.changes + p.d.cols
}

func (p *problem) split(theta []float64) (k, m float64, delta, beta []float64) {
	k, m = theta[0], theta[1]
	delta = append([]float64{}, theta[2:2+p.changes]...)
	beta = append([]float64{}, theta[2+p.changes:]...)
	return k, m, delta, beta
}

// initial returns the starting point: the seed when given, otherwise a line
// through the first and last observation with zero adjustments.
func (p *problem) initial(seed *models.ParameterSeed) ([]float64, error) {
	theta := make([]float64, p.dim())
	if seed != nil {
		if len(seed.Delta) != p.changes {
			return nil, fmt.Errorf("%w: warm start delta has %d entries, model expects %d",
				models.ErrConfiguration, len(seed.Delta), p.changes)
		}
		if len(seed.Beta) != p.d.cols {
			return nil, fmt.Errorf("%w: warm start beta has %d entries, model expects %d",
				models.ErrConfiguration, len(seed.Beta), p.d.cols)
		}
		theta[0], theta[1] = seed.K, seed.M
		copy(theta[2:], seed.Delta)
		copy(theta[2+p.changes:], seed.Beta)
		if p.flat {
			theta[0] = 0
			floats.Scale(0, theta[2:2+p.changes])
		}
		return theta, nil
	}

	if p.flat {
		theta[1] = floats.Sum(p.y) / float64(p.n)
		return theta, nil
	}
	i0, i1 := 0, p.n-1
	if dt := p.t[i1] - p.t[i0]; dt > 0 {
		theta[0] = (p.y[i1] - p.y[i0]) / dt
	}
	theta[1] = p.y[i0] - theta[0]*p.t[i0]
	return theta, nil
}

// evaluate fills p.residuals and returns the per-row trend and multiplicative
// factor needed by the gradient.
func (p *problem) evaluate(theta []float64, trend, factor []float64) {
	k, m := theta[0], theta[1]
	delta := theta[2 : 2+p.changes]
	beta := theta[2+p.changes:]
	cols := p.d.cols

	for i := 0; i < p.n; i++ {
		g := m
		if !p.flat {
			g += k * p.t[i]
			if p.changes > 0 {
				g += floats.Dot(delta, p.hinge[i*p.changes:(i+1)*p.changes])
			}
		}
		var add, mult float64
		row := p.d.x[i*cols : (i+1)*cols]
		for j, v := range row {
			if v == 0 {
				continue
			}
			if p.multCols[j] {
				mult += v * beta[j]
			} else {
				add += v * beta[j]
			}
		}
		trend[i] = g
		factor[i] = 1 + mult
		p.residuals[i] = g*(1+mult) + add - p.y[i]
	}
}

func (p *problem) objective(theta []float64) float64 {
	trend := make([]float64, p.n)
	factor := make([]float64, p.n)
	p.evaluate(theta, trend, factor)

	var f float64
	for _, r := range p.residuals {
		f += r * r
	}
	for j, v := range theta {
		f += p.penalty[j] * v * v
	}
	return f / (2 * float64(p.n))
}

func (p *problem) gradient(grad, theta []float64) {
	trend := make([]float64, p.n)
	factor := make([]float64, p.n)
	p.evaluate(theta, trend, factor)

	for j := range grad {
		grad[j] = p.penalty[j] * theta[j]
	}
	cols := p.d.cols
	for i, r := range p.residuals {
		if r == 0 {
			continue
		}
		rf := r * factor[i]
		if !p.flat {
			grad[0] += rf * p.t[i]
			if p.changes > 0 {
				floats.AddScaled(grad[2:2+p.changes], rf, p.hinge[i*p.changes:(i+1)*p.changes])
			}
		}
		grad[1] += rf
		row := p.d.x[i*cols : (i+1)*cols]
		g := grad[2+p.changes:]
		for j, v := range row {
			if v == 0 {
				continue
			}
			if p.multCols[j] {
				g[j] += r * trend[i] * v
			} else {
				g[j] += r * v
			}
		}
	}
	if p.flat {
		grad[0] = 0
		floats.Scale(0, grad[2:2+p.changes])
	}
	floats.Scale(1/float64(p.n), grad)
}

// sigma is the residual standard deviation at theta, in scaled units.
func (p *problem) sigma(theta []float64) float64 {
	trend := make([]float64, p.n)
	factor := make([]float64, p.n)
	p.evaluate(theta, trend, factor)
	s := math.Sqrt(floats.Dot(p.residuals, p.residuals) / float64(p.n))
	return math.Max(s, 1e-9)
}

// minimize runs L-BFGS from init. A run that stops on a line-search failure
// near the optimum still yields a usable estimate and is only logged.
func (p *problem) minimize(init []float64, maxIterations int) (*models.OptimizerRun, []float64, error) {
	prob := optimize.Problem{
		Func: p.objective,
		Grad: func(grad, x []float64) {
			p.gradient(grad, x)
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   maxIterations,
		GradientThreshold: 1e-9,
	}

	result, err := optimize.Minimize(prob, init, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, nil, fmt.Errorf("optimization failed: %w", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("optimization diverged (status %s)", result.Status)
		}
	}
	if err != nil {
		logger.Warn("Optimizer stopped early (status %s): %v; using best estimate", result.Status, err)
	}

	run := &models.OptimizerRun{
		Method:     "lbfgs",
		Status:     result.Status.String(),
		Iterations: result.Stats.MajorIterations,
		Objective:  result.F,
	}
	return run, append([]float64{}, result.X...), nil
}
