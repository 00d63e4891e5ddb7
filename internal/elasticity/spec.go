// Package elasticity builds the masked hierarchical log-log regression of
// weekly volume on base price, promotional depth and competitor price, and
// exposes its log density and gradient to a sampling engine.
//
// Per-retailer base elasticity, promo elasticity and intercept are partially
// pooled through a population mean and spread. A coefficient the retailer's
// rows pin down tightly is sampled directly; one they barely inform (a
// masked column, or one whose data uncertainty is not small against the
// population spread) is sampled as a standard-normal offset,
// coefficient[g] = mu + sigma_group * z[g].
//
// Sampling happens on a centred design: price, promo and competitor columns
// are centred per retailer, seasonal dummies are centred, and the week index
// is standardised. The intercept block holds the intercept at the centred
// design; Constrain maps every draw back to coefficients of the uncentred
// regression, which is also where the intercept priors apply. The shift is
// a unit-Jacobian shear, so the posterior is unchanged.
package elasticity

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/elasticity-cli/internal/model"
)

// Global parameter slots on the unconstrained scale. Group blocks follow
// them, then the shared coefficients.
const (
	idxMuBase = iota
	idxLogSigmaBase
	idxMuPromo
	idxLogSigmaPromo
	idxMuIntercept
	idxLogSigmaIntercept
	numGlobal
)

// Shared coefficient offsets after the three group blocks.
const (
	offCross = iota
	offSpring
	offSummer
	offFall
	offTime
	offLogSigma
	numShared
)

// Pooled slope blocks.
const (
	blockBase = iota
	blockPromo
	numBlocks
)

// offsetRatio is the largest ratio of a coefficient's data standard error to
// the population spread prior at which it is still sampled directly.
const offsetRatio = 0.25

// Spec is a built model: design columns, group index, response and priors.
// It is immutable and safe for concurrent use by several chains.
type Spec struct {
	Groups []string
	Priors Priors

	group  []int
	xBase  []float64 // log base price, centred per group
	xPromo []float64 // promo depth times has_promo, centred per group
	xComp  []float64 // log competitor price times has_competitor, centred per group
	season [3][]float64
	time   []float64 // standardised week index
	y      []float64
	counts []int

	baseMean   []float64
	promoMean  []float64
	compMean   []float64
	seasonMean [3]float64
	timeMean   float64
	timeScale  float64

	// offset[b][g] is true when block b of group g is sampled as z[g].
	offset [numBlocks][]bool
}

// Build derives the design from masked panel records. Groups are the sorted
// distinct retailer names.
func Build(records []model.WeeklyPanelRecord, priors Priors) (*Spec, error) {
	if len(records) == 0 {
		return nil, eris.New("elasticity: no records")
	}

	seen := make(map[string]bool)
	for _, r := range records {
		seen[r.Retailer] = true
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	index := make(map[string]int, len(groups))
	for i, g := range groups {
		index[g] = i
	}

	n := len(records)
	s := &Spec{
		Groups:    groups,
		Priors:    priors,
		group:     make([]int, n),
		xBase:     make([]float64, n),
		xPromo:    make([]float64, n),
		xComp:     make([]float64, n),
		time:      make([]float64, n),
		y:         make([]float64, n),
		counts:    make([]int, len(groups)),
		baseMean:  make([]float64, len(groups)),
		promoMean: make([]float64, len(groups)),
		compMean:  make([]float64, len(groups)),
	}
	for j := range s.season {
		s.season[j] = make([]float64, n)
	}
	for i, r := range records {
		g := index[r.Retailer]
		s.group[i] = g
		s.counts[g]++
		s.xBase[i] = r.LogBasePrice
		s.xPromo[i] = r.PromoTerm()
		s.xComp[i] = r.CompetitorTerm()
		s.season[0][i] = model.Indicator(r.Spring)
		s.season[1][i] = model.Indicator(r.Summer)
		s.season[2][i] = model.Indicator(r.Fall)
		s.time[i] = float64(r.WeekIndex)
		s.y[i] = r.LogVolume
	}
	for _, col := range [][]float64{s.xBase, s.xPromo, s.xComp, s.time, s.y} {
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, eris.New("elasticity: non-finite value in design")
			}
		}
	}

	s.centre()
	s.offset[blockBase] = s.chooseOffsets(s.xBase)
	s.offset[blockPromo] = s.chooseOffsets(s.xPromo)
	return s, nil
}

// centre shifts the slope columns to zero mean within each group, the
// seasonal dummies to zero overall mean, and standardises the week index.
// Masked columns are all zero and stay zero.
func (s *Spec) centre() {
	for _, c := range []struct {
		col  []float64
		mean []float64
	}{{s.xBase, s.baseMean}, {s.xPromo, s.promoMean}, {s.xComp, s.compMean}} {
		for i, v := range c.col {
			c.mean[s.group[i]] += v
		}
		for g := range c.mean {
			c.mean[g] /= float64(s.counts[g])
		}
		for i := range c.col {
			c.col[i] -= c.mean[s.group[i]]
		}
	}

	for j, col := range s.season {
		s.seasonMean[j] = stat.Mean(col, nil)
		floats.AddConst(-s.seasonMean[j], col)
	}

	var variance float64
	s.timeMean, variance = stat.PopMeanVariance(s.time, nil)
	s.timeScale = math.Sqrt(variance)
	if s.timeScale == 0 {
		s.timeScale = 1
	}
	floats.AddConst(-s.timeMean, s.time)
	floats.Scale(1/s.timeScale, s.time)
}

// chooseOffsets decides per group whether a slope is sampled directly or as
// an offset. The slope's standard error is estimated from the group's own
// least-squares residual scale.
func (s *Spec) chooseOffsets(col []float64) []bool {
	out := make([]bool, len(s.Groups))
	tau := s.Priors.SigmaGroup.Sigma
	for g := range out {
		var ss float64
		for i, v := range col {
			if s.group[i] == g {
				ss += v * v
			}
		}
		if ss == 0 || tau <= 0 {
			out[g] = true
			continue
		}
		se := s.residualScale(g) / math.Sqrt(ss)
		out[g] = se >= offsetRatio*tau
	}
	return out
}

// residualScale fits log volume on every non-degenerate design column of
// group g by least squares and returns the residual standard deviation. It
// falls back to the raw spread of log volume when the fit is not possible.
func (s *Spec) residualScale(g int) float64 {
	var rows []int
	for i, gi := range s.group {
		if gi == g {
			rows = append(rows, i)
		}
	}
	y := make([]float64, len(rows))
	for k, i := range rows {
		y[k] = s.y[i]
	}
	fallback := math.Sqrt(stat.PopVariance(y, nil))

	var cols [][]float64
	for _, col := range append([][]float64{s.xBase, s.xPromo, s.xComp, s.time}, s.season[:]...) {
		var ss float64
		for _, i := range rows {
			ss += col[i] * col[i]
		}
		if ss > 0 {
			cols = append(cols, col)
		}
	}
	k := len(cols) + 1
	if len(rows) <= k {
		return fallback
	}

	x := mat.NewDense(len(rows), k, nil)
	for r, i := range rows {
		x.Set(r, 0, 1)
		for c, col := range cols {
			x.Set(r, c+1, col[i])
		}
	}
	var qr mat.QR
	qr.Factorize(x)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, mat.NewDense(len(rows), 1, y)); err != nil {
		return fallback
	}
	var fit mat.Dense
	fit.Mul(x, &beta)
	var ss float64
	for r, v := range y {
		d := v - fit.At(r, 0)
		ss += d * d
	}
	scale := math.Sqrt(ss / float64(len(rows)-k))
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fallback
	}
	return scale
}

// Rows is the number of observations.
func (s *Spec) Rows() int { return len(s.y) }

// GroupRows returns the observation count of each group, in Groups order.
func (s *Spec) GroupRows() []int {
	out := make([]int, len(s.counts))
	copy(out, s.counts)
	return out
}

// Offsets reports, per group, whether the base and promo slopes are sampled
// as standard-normal offsets.
func (s *Spec) Offsets() (base, promo []bool) {
	base = append([]bool(nil), s.offset[blockBase]...)
	promo = append([]bool(nil), s.offset[blockPromo]...)
	return base, promo
}

// Dim is the length of the unconstrained parameter vector.
func (s *Spec) Dim() int { return numGlobal + 3*len(s.Groups) + numShared }

func (s *Spec) zBase() int      { return numGlobal }
func (s *Spec) zPromo() int     { return numGlobal + len(s.Groups) }
func (s *Spec) zIntercept() int { return numGlobal + 2*len(s.Groups) }
func (s *Spec) shared() int     { return numGlobal + 3*len(s.Groups) }

// block returns the population mean slot, log spread slot and first group
// slot of a slope block.
func (s *Spec) block(b int) (mu, logSigma, start int) {
	if b == blockBase {
		return idxMuBase, idxLogSigmaBase, s.zBase()
	}
	return idxMuPromo, idxLogSigmaPromo, s.zPromo()
}

// ParameterNames lists the constrained parameter names in the order
// Constrain returns them.
func (s *Spec) ParameterNames() []string {
	names := []string{
		"mu_global_base", "sigma_group_base",
		"mu_global_promo", "sigma_group_promo",
		"mu_global_intercept", "sigma_group_intercept",
	}
	for _, prefix := range []string{"base_elasticity", "promo_elasticity", "intercept"} {
		for _, g := range s.Groups {
			names = append(names, GroupParameter(prefix, g))
		}
	}
	return append(names, "elasticity_cross", "beta_spring", "beta_summer", "beta_fall", "beta_time", "sigma")
}

// GroupParameter formats the name of a per-group parameter.
func GroupParameter(prefix, group string) string {
	return prefix + "[" + group + "]"
}

// Constrain maps an unconstrained vector to named parameter values on the
// uncentred design.
func (s *Spec) Constrain(theta []float64) []float64 {
	out := make([]float64, s.Dim())
	out[idxMuBase] = theta[idxMuBase]
	out[idxLogSigmaBase] = math.Exp(theta[idxLogSigmaBase])
	out[idxMuPromo] = theta[idxMuPromo]
	out[idxLogSigmaPromo] = math.Exp(theta[idxLogSigmaPromo])
	out[idxMuIntercept] = theta[idxMuIntercept]
	out[idxLogSigmaIntercept] = math.Exp(theta[idxLogSigmaIntercept])

	base, promo := s.slopes(theta)
	copy(out[s.zBase():], base)
	copy(out[s.zPromo():], promo)
	copy(out[s.zIntercept():], s.intercepts(theta, base, promo))

	sh := s.shared()
	copy(out[sh:sh+offTime], theta[sh:sh+offTime])
	out[sh+offTime] = theta[sh+offTime] / s.timeScale
	out[sh+offLogSigma] = math.Exp(theta[sh+offLogSigma])
	return out
}

// Initial returns a starting point: the priors' means for slopes and shared
// coefficients, each group's mean log volume for the centred intercepts,
// and the priors' scales for the spreads.
func (s *Spec) Initial() []float64 {
	theta := make([]float64, s.Dim())
	p := s.Priors
	theta[idxMuBase] = p.BaseElasticity.Mu
	theta[idxLogSigmaBase] = math.Log(p.SigmaGroup.Sigma / 2)
	theta[idxMuPromo] = p.PromoElasticity.Mu
	theta[idxLogSigmaPromo] = math.Log(p.SigmaGroup.Sigma / 2)
	theta[idxLogSigmaIntercept] = math.Log(p.SigmaGroupIntercept.Sigma / 2)

	for b := 0; b < numBlocks; b++ {
		mu, _, start := s.block(b)
		for g, off := range s.offset[b] {
			if !off {
				theta[start+g] = theta[mu]
			}
		}
	}
	for i, v := range s.y {
		theta[s.zIntercept()+s.group[i]] += v / float64(s.counts[s.group[i]])
	}

	sh := s.shared()
	theta[sh+offCross] = p.Cross.Mu
	theta[sh+offSpring] = p.Spring.Mu
	theta[sh+offSummer] = p.Summer.Mu
	theta[sh+offFall] = p.Fall.Mu
	theta[sh+offTime] = p.Time.Mu * s.timeScale
	theta[sh+offLogSigma] = math.Log(p.Sigma.Sigma)

	base, promo := s.slopes(theta)
	theta[idxMuIntercept] = stat.Mean(s.intercepts(theta, base, promo), nil)
	return theta
}

// slopes returns the per-group base and promo elasticities.
func (s *Spec) slopes(theta []float64) (base, promo []float64) {
	out := [numBlocks][]float64{}
	for b := range out {
		mu, logSigma, start := s.block(b)
		sigma := math.Exp(theta[logSigma])
		out[b] = make([]float64, len(s.Groups))
		for g := range out[b] {
			if s.offset[b][g] {
				out[b][g] = theta[mu] + sigma*theta[start+g]
			} else {
				out[b][g] = theta[start+g]
			}
		}
	}
	return out[blockBase], out[blockPromo]
}

// intercepts maps the centred-design intercepts back to the uncentred
// regression.
func (s *Spec) intercepts(theta, base, promo []float64) []float64 {
	sh := s.shared()
	shift := theta[sh+offTime] * s.timeMean / s.timeScale
	for j := range s.seasonMean {
		shift += theta[sh+offSpring+j] * s.seasonMean[j]
	}
	out := make([]float64, len(s.Groups))
	for g := range out {
		out[g] = theta[s.zIntercept()+g] - base[g]*s.baseMean[g] - promo[g]*s.promoMean[g] -
			theta[sh+offCross]*s.compMean[g] - shift
	}
	return out
}

// predict returns the linear predictor for every observation.
func (s *Spec) predict(theta, base, promo []float64) []float64 {
	sh := s.shared()
	cross, bTime := theta[sh+offCross], theta[sh+offTime]
	eta := make([]float64, len(s.y))
	for i := range eta {
		g := s.group[i]
		eta[i] = theta[s.zIntercept()+g] + base[g]*s.xBase[i] + promo[g]*s.xPromo[i] +
			cross*s.xComp[i] + bTime*s.time[i]
		for j := range s.season {
			eta[i] += theta[sh+offSpring+j] * s.season[j][i]
		}
	}
	return eta
}

// LogDensity is the unnormalised log posterior at theta.
func (s *Spec) LogDensity(theta []float64) float64 {
	return s.evaluate(theta, make([]float64, len(theta)))
}

// Gradient writes the gradient of LogDensity at theta into grad and returns
// the log density.
func (s *Spec) Gradient(theta, grad []float64) float64 {
	return s.evaluate(theta, grad)
}

// evaluate computes the log density and its gradient.
func (s *Spec) evaluate(theta, grad []float64) float64 {
	p := s.Priors
	G := len(s.Groups)
	sh := s.shared()
	for i := range grad {
		grad[i] = 0
	}

	var lp float64
	addNormal := func(idx int, prior Normal) {
		l, d := prior.logDensity(theta[idx])
		lp += l
		grad[idx] += d
	}
	addHalf := func(idx int, prior HalfNormal) float64 {
		v := math.Exp(theta[idx])
		l, d := prior.logDensityLog(theta[idx], v)
		lp += l
		grad[idx] += d
		return v
	}

	addNormal(idxMuBase, p.BaseElasticity)
	addNormal(idxMuPromo, p.PromoElasticity)
	addNormal(idxMuIntercept, p.Intercept)
	addHalf(idxLogSigmaBase, p.SigmaGroup)
	addHalf(idxLogSigmaPromo, p.SigmaGroup)
	si := addHalf(idxLogSigmaIntercept, p.SigmaGroupIntercept)

	addNormal(sh+offCross, p.Cross)
	addNormal(sh+offSpring, p.Spring)
	addNormal(sh+offSummer, p.Summer)
	addNormal(sh+offFall, p.Fall)
	lt, dt := p.Time.logDensity(theta[sh+offTime] / s.timeScale)
	lp += lt
	grad[sh+offTime] += dt / s.timeScale
	sigma := addHalf(sh+offLogSigma, p.Sigma)

	base, promo := s.slopes(theta)
	// Gradients with respect to the slopes themselves; chained through the
	// parameterisation at the end.
	gSlope := [numBlocks][]float64{make([]float64, G), make([]float64, G)}

	for b, coef := range [numBlocks][]float64{base, promo} {
		mu, logSigma, start := s.block(b)
		sd := math.Exp(theta[logSigma])
		for g := 0; g < G; g++ {
			if s.offset[b][g] {
				z := theta[start+g]
				lp -= z * z / 2
				grad[start+g] -= z
				continue
			}
			d := (coef[g] - theta[mu]) / sd
			lp += -theta[logSigma] - d*d/2
			gSlope[b][g] -= d / sd
			grad[mu] += d / sd
			grad[logSigma] += -1 + d*d
		}
	}

	// Intercepts are pooled on the uncentred scale.
	icpt := s.intercepts(theta, base, promo)
	gIcpt := make([]float64, G)
	for g, v := range icpt {
		d := (v - theta[idxMuIntercept]) / si
		lp += -theta[idxLogSigmaIntercept] - d*d/2
		gIcpt[g] = -d / si
		grad[idxMuIntercept] += d / si
		grad[idxLogSigmaIntercept] += -1 + d*d
	}

	eta := s.predict(theta, base, promo)
	n := float64(len(s.y))
	w := make([]float64, len(s.y))
	floats.SubTo(w, s.y, eta)
	ss := floats.Dot(w, w)
	lp += -n*theta[sh+offLogSigma] - ss/(2*sigma*sigma)
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return math.Inf(-1)
	}

	grad[sh+offLogSigma] += -n + ss/(sigma*sigma)
	floats.Scale(1/(sigma*sigma), w) // residual / sigma^2

	for i, wi := range w {
		g := s.group[i]
		gSlope[blockBase][g] += wi * s.xBase[i]
		gSlope[blockPromo][g] += wi * s.xPromo[i]
		grad[s.zIntercept()+g] += wi
	}
	grad[sh+offCross] += floats.Dot(w, s.xComp)
	for j := range s.season {
		grad[sh+offSpring+j] += floats.Dot(w, s.season[j])
	}
	grad[sh+offTime] += floats.Dot(w, s.time)

	// Chain the uncentred intercepts back onto the sampled coordinates.
	for g, gi := range gIcpt {
		grad[s.zIntercept()+g] += gi
		gSlope[blockBase][g] -= gi * s.baseMean[g]
		gSlope[blockPromo][g] -= gi * s.promoMean[g]
		grad[sh+offCross] -= gi * s.compMean[g]
		for j := range s.seasonMean {
			grad[sh+offSpring+j] -= gi * s.seasonMean[j]
		}
		grad[sh+offTime] -= gi * s.timeMean / s.timeScale
	}

	for b := 0; b < numBlocks; b++ {
		mu, logSigma, start := s.block(b)
		sd := math.Exp(theta[logSigma])
		for g, gc := range gSlope[b] {
			if !s.offset[b][g] {
				grad[start+g] += gc
				continue
			}
			grad[start+g] += sd * gc
			grad[mu] += gc
			grad[logSigma] += sd * theta[start+g] * gc
		}
	}
	return lp
}
