package api

import (
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/sells-group/elasticity-cli/internal/model"
	"github.com/sells-group/elasticity-cli/internal/posterior"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status":    "ok",
		"panel":     s.artifacts.Panel != nil,
		"posterior": s.artifacts.Archive != nil,
	})
}

// summaryRow carries diagnostics as nullable numbers.
type summaryRow struct {
	posterior.ParameterSummary
	RHat *float64 `json:"r_hat"`
	ESS  *float64 `json:"ess_bulk"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	a := s.artifacts
	if a.Archive == nil {
		writeError(w, r, http.StatusNotFound, "no trace in "+a.Dir)
		return
	}
	diag := make(map[string][2]*float64)
	if a.Convergence != nil {
		for _, p := range a.Convergence.Parameters {
			diag[p.Parameter] = [2]*float64{p.RHat, p.ESS}
		}
	}
	rows := make([]summaryRow, len(a.Summaries))
	for i, sum := range a.Summaries {
		d := diag[sum.Parameter]
		rows[i] = summaryRow{ParameterSummary: sum, RHat: d[0], ESS: d[1]}
	}
	writeJSON(w, r, rows)
}

func (s *Server) handleConvergence(w http.ResponseWriter, r *http.Request) {
	if s.artifacts.Convergence == nil {
		writeError(w, r, http.StatusNotFound, "no convergence report in "+s.artifacts.Dir)
		return
	}
	writeJSON(w, r, s.artifacts.Convergence)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if s.artifacts.Manifest == nil {
		writeError(w, r, http.StatusNotFound, "no manifest in "+s.artifacts.Dir)
		return
	}
	writeJSON(w, r, s.artifacts.Manifest)
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	if s.artifacts.Panel == nil {
		writeError(w, r, http.StatusNotFound, "no prepared data in "+s.artifacts.Dir)
		return
	}
	retailer := strings.TrimSpace(r.URL.Query().Get("retailer"))
	if retailer == "" {
		writeJSON(w, r, s.artifacts.Panel)
		return
	}
	out := make([]model.WeeklyPanelRecord, 0)
	for _, rec := range s.artifacts.Panel {
		if strings.EqualFold(rec.Retailer, retailer) {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		writeError(w, r, http.StatusNotFound, "unknown retailer "+retailer)
		return
	}
	writeJSON(w, r, out)
}

func (s *Server) handleRetailers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.artifacts.Retailers())
}

func (s *Server) handlePriceScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w, r) {
		return
	}
	q := r.URL.Query()
	change, err := floatParam(q, "change")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := priceQuery{Retailer: q.Get("retailer"), Change: change}
	if err := s.validate.Struct(in); err != nil {
		writeError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	res, err := posterior.PriceChange(s.artifacts.Archive, in.Retailer, in.Change)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	s.metrics.scenarios.WithLabelValues(posterior.ScenarioPrice).Inc()
	writeJSON(w, r, res)
}

func (s *Server) handleDiscountScenario(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w, r) {
		return
	}
	q := r.URL.Query()
	depth, err := floatParam(q, "depth")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := discountQuery{Retailer: q.Get("retailer"), Depth: math.Abs(depth)}
	if err := s.validate.Struct(in); err != nil {
		writeError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	res, err := posterior.DiscountDepth(s.artifacts.Archive, in.Retailer, in.Depth)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	s.metrics.scenarios.WithLabelValues(posterior.ScenarioDiscount).Inc()
	writeJSON(w, r, res)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w, r) {
		return
	}
	q := r.URL.Query()
	in := compareQuery{A: q.Get("a"), B: q.Get("b"), Parameter: q.Get("parameter")}
	if in.Parameter == "" {
		in.Parameter = "base_elasticity"
	}
	if err := s.validate.Struct(in); err != nil {
		writeError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}
	res, err := posterior.CompareGroups(s.artifacts.Archive, in.Parameter, in.A, in.B)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, r, res)
}

func (s *Server) handleCompareElasticities(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w, r) {
		return
	}
	retailer := strings.TrimSpace(r.URL.Query().Get("retailer"))
	if retailer == "" {
		writeError(w, r, http.StatusBadRequest, "retailer is required")
		return
	}
	res, err := posterior.CompareElasticities(s.artifacts.Archive, retailer)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, r, res)
}

func (s *Server) handleProbability(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w, r) {
		return
	}
	statement := strings.TrimSpace(r.URL.Query().Get("statement"))
	if statement == "" {
		writeError(w, r, http.StatusBadRequest, "statement is required")
		return
	}
	p, err := posterior.ProbabilityOf(s.artifacts.Archive, statement)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, r, map[string]any{"statement": statement, "probability": p})
}

func (s *Server) requireArchive(w http.ResponseWriter, r *http.Request) bool {
	if s.artifacts.Archive == nil {
		writeError(w, r, http.StatusNotFound, "no trace in "+s.artifacts.Dir)
		return false
	}
	return true
}
