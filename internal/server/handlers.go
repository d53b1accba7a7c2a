package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/ppiankov/txlens/internal/cache"
	"github.com/ppiankov/txlens/internal/graph"
	"github.com/ppiankov/txlens/internal/model"
	"github.com/ppiankov/txlens/internal/pipeline"
)

// User-facing error texts. All fetch failures share one message.
const (
	msgFetchFailed  = "Invalid TXID or failed to fetch transaction data."
	msgMalformed    = "The block explorer returned malformed transaction data."
	msgInternal     = "Internal error while analyzing the transaction."
	msgRateLimited  = "Too many requests, slow down."
	maxFormBodySize = 4 << 10
)

type page struct {
	Title   string
	Report  *model.Report
	Inputs  []flowRow
	Outputs []flowRow
}

type flowRow struct {
	Label   string
	Address string
	Amount  string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", page{Title: "Check a transaction"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
	if err := r.ParseForm(); err != nil {
		textError(w, http.StatusBadRequest, msgFetchFailed)
		return
	}

	report, err := s.analyzer.Analyze(r.Context(), r.PostFormValue("txid"))
	if err != nil {
		s.analysisError(w, r, err)
		return
	}

	s.render(w, http.StatusOK, "result", newResultPage(report))
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	report, err := s.analyzer.Analyze(r.Context(), r.PathValue("txid"))
	if err != nil {
		s.analysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if s.graphsDir == "" {
		http.NotFound(w, r)
		return
	}
	if _, err := cache.KeyFromFile(name); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, filepath.Join(s.graphsDir, name))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analysisError maps pipeline errors to status codes
func (s *Server) analysisError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidOrUnavailable):
		s.logger.Debug("fetch failed", "path", r.URL.Path, "err", err)
		textError(w, http.StatusBadRequest, msgFetchFailed)
	case errors.Is(err, pipeline.ErrMalformedTransaction):
		s.logger.Warn("malformed provider data", "err", err)
		textError(w, http.StatusBadGateway, msgMalformed)
	default:
		s.logger.Error("analysis failed", "err", err)
		textError(w, http.StatusInternalServerError, msgInternal)
	}
}

// limited rejects clients over their request budget
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.clients.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			textError(w, http.StatusTooManyRequests, msgRateLimited)
			return
		}
		next(w, r)
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render template", "template", name, "err", err)
	}
}

func newResultPage(report *model.Report) page {
	p := page{Title: "Privacy report", Report: report}

	for i, addr := range report.Flow.Inputs {
		row := flowRow{Label: report.Labels[addr], Address: addr, Amount: "-"}
		if i < len(report.Flow.InputValues) && report.Flow.InputValues[i] > 0 {
			row.Amount = btc(report.Flow.InputValues[i])
		}
		p.Inputs = append(p.Inputs, row)
	}
	for i, addr := range report.Flow.Outputs {
		row := flowRow{Label: report.Labels[addr], Address: addr, Amount: "-"}
		if report.Flow.HasInput(addr) {
			row.Label = graph.ChangeLabel
		}
		if i < len(report.Flow.OutputValues) {
			row.Amount = btc(report.Flow.OutputValues[i])
		}
		p.Outputs = append(p.Outputs, row)
	}
	return p
}

func btc(sats int64) string {
	return strconv.FormatFloat(model.SatoshisToBTC(sats), 'f', 8, 64)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func textError(w http.ResponseWriter, code int, msg string) {
	http.Error(w, msg, code)
}
