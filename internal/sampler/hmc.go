// Package sampler implements elasticity.Sampler: a no-U-turn Hamiltonian
// Monte Carlo engine and a deterministic stub.
package sampler

import (
	"context"
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/elasticity-cli/internal/elasticity"
	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// DivergenceThreshold is the energy error above which a transition counts
// as divergent.
const DivergenceThreshold = 1000.0

// target is the part of a built model the engine needs.
type target interface {
	Dim() int
	Initial() []float64
	Gradient(theta, grad []float64) float64
	Constrain(theta []float64) []float64
}

// HMC is a multinomial no-U-turn Hamiltonian Monte Carlo sampler with
// dual-averaging step size and windowed diagonal mass matrix adaptation.
// Trajectories double up to floor(log2(MaxLeapfrog)) times.
type HMC struct{}

// NewHMC creates an HMC sampler.
func NewHMC() *HMC { return &HMC{} }

var _ elasticity.Sampler = (*HMC)(nil)

// Sample runs opts.Chains independent chains concurrently and blocks until
// all finish. Chain c is seeded with opts.Seed + c.
func (h *HMC) Sample(ctx context.Context, spec *elasticity.Spec, opts elasticity.SampleOptions) (*posterior.Archive, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return sample(ctx, spec, spec.ParameterNames(), spec.Groups, opts)
}

func sample(ctx context.Context, m target, names, groups []string, opts elasticity.SampleOptions) (*posterior.Archive, error) {
	log := zap.L().With(zap.String("component", "sampler"))
	values := make([][][]float64, opts.Chains)
	divergences := make([]int, opts.Chains)

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < opts.Chains; c++ {
		g.Go(func() error {
			ch := newChain(m, opts, c)
			draws, div, err := ch.run(gctx)
			if err != nil {
				return eris.Wrapf(err, "sampler: chain %d", c)
			}
			values[c] = draws
			divergences[c] = div
			log.Info("chain finished",
				zap.Int("chain", c),
				zap.Int("draws", len(draws)),
				zap.Int("divergences", div),
				zap.Float64("step_size", ch.eps),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &posterior.Archive{
		Parameters:  names,
		Groups:      groups,
		Values:      values,
		Divergences: divergences,
		Settings:    opts.Settings(),
	}, nil
}

type chain struct {
	m        target
	opts     elasticity.SampleOptions
	rng      *rand.Rand
	dim      int
	eps      float64
	invMass  []float64
	maxDepth int

	theta []float64
	grad  []float64
	lp    float64
}

func newChain(m target, opts elasticity.SampleOptions, c int) *chain {
	dim := m.Dim()
	ch := &chain{
		m:        m,
		opts:     opts,
		rng:      rand.New(rand.NewPCG(opts.Seed+uint64(c), 0x5851f42d4c957f2d)),
		dim:      dim,
		eps:      0.1,
		invMass:  make([]float64, dim),
		maxDepth: max(1, bits.Len(uint(opts.MaxLeapfrog))-1),
		theta:    m.Initial(),
		grad:     make([]float64, dim),
	}
	for i := range ch.invMass {
		ch.invMass[i] = 1
	}
	for i := range ch.theta {
		ch.theta[i] += ch.rng.Float64() - 0.5
	}
	ch.lp = m.Gradient(ch.theta, ch.grad)
	return ch
}

// adaptWindows lays out mass matrix adaptation over tune iterations: an
// initial buffer of step size only, doubling windows ending at the returned
// iterations, and a terminal buffer. Short runs scale the buffers down and
// very short runs adapt the step size alone.
func adaptWindows(tune int) (start int, ends []int) {
	if tune < 20 {
		return 0, nil
	}
	initBuf, termBuf, base := 75, 50, 25
	if initBuf+termBuf+base > tune {
		initBuf, termBuf = tune*15/100, tune/10
		base = tune - initBuf - termBuf
	}
	last := tune - termBuf
	size := base
	for s := initBuf; s < last; size *= 2 {
		e := s + size
		if e+2*size > last {
			e = last
		}
		ends = append(ends, e)
		s = e
	}
	return initBuf, ends
}

// run performs tuning then returns the constrained draws and the number of
// divergent transitions after tuning.
func (ch *chain) run(ctx context.Context) ([][]float64, int, error) {
	if math.IsInf(ch.lp, -1) || math.IsNaN(ch.lp) {
		return nil, 0, eris.New("initial point has zero density")
	}
	ch.initStepSize()

	tune := ch.opts.Tune
	windowStart, windowEnds := adaptWindows(tune)
	da := newDualAverage(ch.eps, ch.opts.TargetAccept)
	var window welford
	window.reset(ch.dim)

	for it := 0; it < tune; it++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		accept, _ := ch.transition()
		ch.eps = da.update(accept)
		if len(windowEnds) == 0 || it < windowStart {
			continue
		}
		window.add(ch.theta)
		if it == windowEnds[0]-1 {
			windowEnds = windowEnds[1:]
			if window.n >= 3 {
				ch.invMass = window.regularizedVariance()
			}
			window.reset(ch.dim)
			ch.initStepSize()
			da = newDualAverage(ch.eps, ch.opts.TargetAccept)
		}
	}
	if tune > 0 {
		ch.eps = da.final()
	}

	draws := make([][]float64, ch.opts.Draws)
	divergent := 0
	for d := range draws {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if _, div := ch.transition(); div {
			divergent++
		}
		draws[d] = ch.m.Constrain(ch.theta)
	}
	return draws, divergent, nil
}

// point is a position in phase space.
type point struct {
	theta, p, grad []float64
	lp             float64
}

func (pt point) clone() point {
	return point{
		theta: append([]float64(nil), pt.theta...),
		p:     append([]float64(nil), pt.p...),
		grad:  append([]float64(nil), pt.grad...),
		lp:    pt.lp,
	}
}

// subtree is a finished doubling: its two ends in integration order, the
// multinomial pick among its leaves and their total log weight.
type subtree struct {
	first, last point
	pick        point
	logW        float64
}

// trajectory accumulates acceptance statistics over one transition.
type trajectory struct {
	h0        float64
	acceptSum float64
	leaves    int
	divergent bool
}

// transition performs one multinomial no-U-turn transition: the trajectory
// doubles in a random direction until its ends turn back toward each other,
// a leaf diverges, or the tree reaches maxDepth.
func (ch *chain) transition() (accept float64, divergent bool) {
	p := make([]float64, ch.dim)
	for i := range p {
		p[i] = ch.rng.NormFloat64() / math.Sqrt(ch.invMass[i])
	}
	start := point{theta: ch.theta, p: p, grad: ch.grad, lp: ch.lp}
	tr := &trajectory{h0: -ch.lp + ch.kinetic(p)}

	minus, plus := start.clone(), start.clone()
	pick := start.clone()
	logW := 0.0

	for depth := 0; depth < ch.maxDepth; depth++ {
		var sub subtree
		var ok bool
		if ch.rng.Float64() < 0.5 {
			sub, ok = ch.buildTree(plus, depth, 1, tr)
			if ok {
				plus = sub.last
			}
		} else {
			sub, ok = ch.buildTree(minus, depth, -1, tr)
			if ok {
				minus = sub.last
			}
		}
		if !ok {
			break
		}
		// Biased progressive sampling favours the newer half.
		if math.Log(ch.rng.Float64()) < sub.logW-logW {
			pick = sub.pick
		}
		logW = logAddExp(logW, sub.logW)
		if ch.turned(minus, plus) {
			break
		}
	}

	ch.theta, ch.grad, ch.lp = pick.theta, pick.grad, pick.lp
	if tr.leaves == 0 {
		return 0, tr.divergent
	}
	return tr.acceptSum / float64(tr.leaves), tr.divergent
}

// buildTree extends edge by 2^depth leapfrog steps in direction dir. ok is
// false when a leaf diverged or any inner subtree made a U-turn; the subtree
// is then discarded.
func (ch *chain) buildTree(edge point, depth int, dir float64, tr *trajectory) (subtree, bool) {
	if depth == 0 {
		next := edge.clone()
		next.lp = ch.leapfrog(next.theta, next.p, next.grad, dir*ch.eps)
		h := -next.lp + ch.kinetic(next.p)
		if math.IsNaN(h) {
			h = math.Inf(1)
		}
		tr.leaves++
		tr.acceptSum += math.Min(1, math.Exp(tr.h0-h))
		if h-tr.h0 > DivergenceThreshold {
			tr.divergent = true
			return subtree{}, false
		}
		return subtree{first: next, last: next, pick: next, logW: tr.h0 - h}, true
	}

	left, ok := ch.buildTree(edge, depth-1, dir, tr)
	if !ok {
		return subtree{}, false
	}
	right, ok := ch.buildTree(left.last, depth-1, dir, tr)
	if !ok {
		return subtree{}, false
	}

	out := subtree{first: left.first, last: right.last, pick: left.pick, logW: logAddExp(left.logW, right.logW)}
	if math.Log(ch.rng.Float64()) < right.logW-out.logW {
		out.pick = right.pick
	}
	minus, plus := out.first, out.last
	if dir < 0 {
		minus, plus = plus, minus
	}
	if ch.turned(minus, plus) {
		return subtree{}, false
	}
	return out, true
}

// turned reports whether the momentum at either end points back across the
// span between them.
func (ch *chain) turned(minus, plus point) bool {
	var dMinus, dPlus float64
	for i := range minus.theta {
		span := plus.theta[i] - minus.theta[i]
		dMinus += span * ch.invMass[i] * minus.p[i]
		dPlus += span * ch.invMass[i] * plus.p[i]
	}
	return dMinus < 0 || dPlus < 0
}

// leapfrog takes one step of size eps in place and returns the new log
// density.
func (ch *chain) leapfrog(theta, p, grad []float64, eps float64) float64 {
	for i := range p {
		p[i] += eps / 2 * grad[i]
	}
	for i := range theta {
		theta[i] += eps * ch.invMass[i] * p[i]
	}
	lp := ch.m.Gradient(theta, grad)
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return math.Inf(-1)
	}
	for i := range p {
		p[i] += eps / 2 * grad[i]
	}
	return lp
}

func (ch *chain) kinetic(p []float64) float64 {
	k := 0.0
	for i, v := range p {
		k += ch.invMass[i] * v * v
	}
	return k / 2
}

// initStepSize doubles or halves eps until a single leapfrog step crosses
// an acceptance probability of one half.
func (ch *chain) initStepSize() {
	step := func() float64 {
		p := make([]float64, ch.dim)
		for i := range p {
			p[i] = ch.rng.NormFloat64() / math.Sqrt(ch.invMass[i])
		}
		h0 := -ch.lp + ch.kinetic(p)
		theta := append([]float64(nil), ch.theta...)
		grad := append([]float64(nil), ch.grad...)
		lp := ch.leapfrog(theta, p, grad, ch.eps)
		dE := -lp + ch.kinetic(p) - h0
		if math.IsNaN(dE) {
			return math.Inf(1)
		}
		return dE
	}

	dE := step()
	dir := 1.0
	if !(-dE > math.Log(0.5)) {
		dir = -1
	}
	for i := 0; i < 50; i++ {
		dE = step()
		if dir > 0 && !(-dE > math.Log(0.5)) || dir < 0 && -dE > math.Log(0.5) {
			break
		}
		ch.eps *= math.Pow(2, dir)
	}
}

func logAddExp(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(b, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// dualAverage adapts log step size toward a target acceptance rate.
type dualAverage struct {
	mu, hBar, logEps, logEpsBar float64
	target                      float64
	t                           float64
}

const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

func newDualAverage(eps, target float64) *dualAverage {
	return &dualAverage{mu: math.Log(10 * eps), logEps: math.Log(eps), target: target}
}

func (d *dualAverage) update(accept float64) float64 {
	d.t++
	eta := 1 / (d.t + daT0)
	d.hBar = (1-eta)*d.hBar + eta*(d.target-accept)
	d.logEps = d.mu - math.Sqrt(d.t)/daGamma*d.hBar
	w := math.Pow(d.t, -daKappa)
	d.logEpsBar = w*d.logEps + (1-w)*d.logEpsBar
	return math.Exp(d.logEps)
}

func (d *dualAverage) final() float64 {
	if d.t == 0 {
		return math.Exp(d.logEps)
	}
	return math.Exp(d.logEpsBar)
}

// welford accumulates running means and variances.
type welford struct {
	n    int
	mean []float64
	m2   []float64
}

func (w *welford) reset(dim int) {
	w.n = 0
	w.mean = make([]float64, dim)
	w.m2 = make([]float64, dim)
}

func (w *welford) add(x []float64) {
	w.n++
	for i, v := range x {
		d := v - w.mean[i]
		w.mean[i] += d / float64(w.n)
		w.m2[i] += d * (v - w.mean[i])
	}
}

// regularizedVariance shrinks the window variance toward a small constant.
func (w *welford) regularizedVariance() []float64 {
	n := float64(w.n)
	out := make([]float64, len(w.m2))
	for i, m2 := range w.m2 {
		v := m2 / (n - 1)
		out[i] = n/(n+5)*v + 1e-3*5/(n+5)
	}
	return out
}
