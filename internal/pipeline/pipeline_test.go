package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/txlens/internal/cache"
	"github.com/ppiankov/txlens/internal/llm"
	"github.com/ppiankov/txlens/internal/model"
)

type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Explain(ctx context.Context, req llm.ExplainRequest) (*llm.ExplainResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ExplainResponse{Text: s.text, Model: "stub-1"}, nil
}

type recordingPublisher struct {
	published []*model.Report
	err       error
}

func (r *recordingPublisher) Publish(ctx context.Context, report *model.Report) error {
	r.published = append(r.published, report)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func newProviderServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = fmt.Fprint(w, esploraDoc)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) *model.Config {
	cfg := model.DefaultConfig()
	cfg.Provider.BaseURL = baseURL
	cfg.Render.Width = 320
	cfg.Render.Height = 240
	cfg.Render.Updates = 10
	return cfg
}

func openStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(cache.Options{Dir: t.TempDir(), MaxEntries: 50, TTL: time.Hour})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAnalyze_ScoresAndRenders(t *testing.T) {
	server := newProviderServer(t, nil)
	store := openStore(t)
	publisher := &recordingPublisher{}

	p := NewPipeline(testConfig(server.URL), Deps{Store: store, Publisher: publisher})
	report, err := p.Analyze(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// address reuse -30, change to same address -20, fresh change +10
	if report.Score.Value != 60 {
		t.Errorf("Expected score 60, got %d", report.Score.Value)
	}
	if report.Score.Judgment != model.JudgmentWeak {
		t.Errorf("Expected %q, got %q", model.JudgmentWeak, report.Score.Judgment)
	}

	wantRules := []model.RuleID{model.RuleAddressReuse, model.RuleChangeSameAddress, model.RuleFreshChange}
	if len(report.Score.Entries) != len(wantRules) {
		t.Fatalf("Expected %d entries, got %d", len(wantRules), len(report.Score.Entries))
	}
	for i, want := range wantRules {
		if report.Score.Entries[i].Rule != want {
			t.Errorf("Entry %d: expected %s, got %s", i, want, report.Score.Entries[i].Rule)
		}
	}

	if len(report.Graphs) != len(wantRules) {
		t.Fatalf("Expected one graph per entry, got %d", len(report.Graphs))
	}
	for _, g := range report.Graphs {
		if _, err := os.Stat(g.Path); err != nil {
			t.Errorf("Graph %s not on disk: %v", g.Rule, err)
		}
		if g.Reused {
			t.Errorf("Graph %s should be freshly rendered", g.Rule)
		}
	}

	if report.Labels["12cbQLTFMXRnSzktFkuoG3eHoMeFtpTu3S"] != "Your Wallet" {
		t.Errorf("Unexpected labels: %v", report.Labels)
	}
	if !report.Confirmed || report.Provider != server.URL {
		t.Errorf("Unexpected metadata: confirmed=%v provider=%s", report.Confirmed, report.Provider)
	}
	if len(publisher.published) != 1 {
		t.Errorf("Expected 1 published event, got %d", len(publisher.published))
	}
	if len(report.Warnings) != 0 {
		t.Errorf("Unexpected warnings: %v", report.Warnings)
	}
}

func TestAnalyze_ReusesGraphs(t *testing.T) {
	var hits atomic.Int32
	server := newProviderServer(t, &hits)
	store := openStore(t)

	p := NewPipeline(testConfig(server.URL), Deps{Store: store})
	first, err := p.Analyze(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("First analysis failed: %v", err)
	}
	second, err := p.Analyze(context.Background(), strings.ToUpper(testTxID))
	if err != nil {
		t.Fatalf("Second analysis failed: %v", err)
	}

	// The record is fetched every time; only images are reused
	if hits.Load() != 2 {
		t.Errorf("Expected 2 provider requests, got %d", hits.Load())
	}
	for i, g := range second.Graphs {
		if !g.Reused {
			t.Errorf("Graph %s should be reused", g.Rule)
		}
		if g.Path != first.Graphs[i].Path {
			t.Errorf("Graph %s path changed: %s vs %s", g.Rule, g.Path, first.Graphs[i].Path)
		}
	}
}

func TestAnalyze_GraphsSurviveSmallStore(t *testing.T) {
	server := newProviderServer(t, nil)
	store, err := cache.Open(cache.Options{Dir: t.TempDir(), MaxEntries: 2})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	p := NewPipeline(testConfig(server.URL), Deps{Store: store})
	report, err := p.Analyze(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(report.Graphs) <= 2 {
		t.Fatalf("Expected more graphs than the store bound, got %d", len(report.Graphs))
	}
	for _, g := range report.Graphs {
		if _, err := os.Stat(g.Path); err != nil {
			t.Errorf("Report references missing graph %s: %v", g.Rule, err)
		}
	}
}

func TestAnalyze_GraphsDisabled(t *testing.T) {
	server := newProviderServer(t, nil)
	cfg := testConfig(server.URL)
	cfg.Output.Graphs = false

	p := NewPipeline(cfg, Deps{Store: openStore(t)})
	report, err := p.Analyze(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(report.Graphs) != 0 {
		t.Errorf("Expected no graphs, got %d", len(report.Graphs))
	}
	if len(report.Score.Entries) == 0 {
		t.Error("Scoring must still run")
	}
}

func TestAnalyze_FetchErrorsPassThrough(t *testing.T) {
	p := NewPipeline(testConfig("http://127.0.0.1:1"), Deps{})

	_, err := p.Analyze(context.Background(), "not-a-txid")
	if !errors.Is(err, ErrInvalidOrUnavailable) {
		t.Errorf("Expected ErrInvalidOrUnavailable, got %v", err)
	}
}

func TestAnalyze_Explanation(t *testing.T) {
	server := newProviderServer(t, nil)
	explainer := llm.NewExplainerWithProvider(&stubProvider{text: "Change went back home."}, llm.Config{})

	p := NewPipeline(testConfig(server.URL), Deps{Explainer: explainer})
	report, err := p.Analyze(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.Explanation == nil || report.Explanation.Text != "Change went back home." {
		t.Fatalf("Expected explanation, got %+v", report.Explanation)
	}
	if report.Score.Value != 60 {
		t.Errorf("Explanation must not change the score, got %d", report.Score.Value)
	}
}

func TestAnalyze_OptionalFailuresBecomeWarnings(t *testing.T) {
	server := newProviderServer(t, nil)
	explainer := llm.NewExplainerWithProvider(&stubProvider{err: errors.New("quota")}, llm.Config{})
	publisher := &recordingPublisher{err: errors.New("broker down")}

	p := NewPipeline(testConfig(server.URL), Deps{Explainer: explainer, Publisher: publisher})
	report, err := p.Analyze(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("Optional collaborators must not fail the analysis: %v", err)
	}
	if report.Explanation != nil {
		t.Error("Expected no explanation")
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %v", report.Warnings)
	}
	if !strings.Contains(report.Warnings[0], "quota") || !strings.Contains(report.Warnings[1], "broker down") {
		t.Errorf("Unexpected warnings: %v", report.Warnings)
	}
}

func sampleReport() *model.Report {
	return &model.Report{
		TxID:      testTxID,
		Provider:  "https://blockstream.info/api",
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Confirmed: true,
		Flow: model.Flow{
			Inputs:       []string{"a1"},
			Outputs:      []string{"r1", "a1"},
			OutputValues: []int64{1_000_000, 2_500},
			InputValues:  []int64{1_010_000},
		},
		Labels: map[string]string{"a1": "Your Wallet", "r1": "Recipient 2"},
		Score: model.Score{
			Value:    70,
			Judgment: model.JudgmentModerate,
			Entries: []model.Entry{
				{Rule: model.RuleRoundOutputs, Label: "Round-number outputs", Delta: -10, Rationale: "Round amount."},
			},
		},
		Graphs:   []model.Graph{{Rule: model.RuleRoundOutputs, Label: "Round-number outputs", Path: "static/graphs/graph-x.png"}},
		Warnings: []string{"event not published: broker down"},
	}
}

func TestFormatMarkdown(t *testing.T) {
	md := FormatMarkdown(sampleReport())

	for _, want := range []string{
		"`" + testTxID + "`",
		"## Score: 70 (Moderate privacy)",
		"| Round-number outputs | -10 | Round amount. |",
		"| in | Your Wallet | `a1` | 0.01010000 |",
		"| out | Recipient 2 | `r1` | 0.01000000 |",
		"| out | Your Change | `a1` | 0.00002500 |",
		"![Round-number outputs](static/graphs/graph-x.png)",
		"- event not published: broker down",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q\n%s", want, md)
		}
	}
}

func TestFormatMarkdown_NoEntries(t *testing.T) {
	report := sampleReport()
	report.Score.Entries = nil
	report.Graphs = nil

	md := FormatMarkdown(report)
	if !strings.Contains(md, "No heuristic fired.") {
		t.Error("Expected placeholder for empty breakdown")
	}
	if strings.Contains(md, "## Graphs") {
		t.Error("Expected no graphs section")
	}
}

func TestRenderJSONAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out", "report.json")
	mdPath := filepath.Join(dir, "out", "report.md")

	if err := RenderJSON(sampleReport(), jsonPath); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	if err := RenderMarkdown(sampleReport(), mdPath); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("Failed to read JSON: %v", err)
	}
	if !bytes.Contains(data, []byte(`"breakdown"`)) || !bytes.Contains(data, []byte(`"rule": "round_outputs"`)) {
		t.Errorf("Unexpected JSON:\n%s", data)
	}
	if _, err := os.Stat(mdPath); err != nil {
		t.Errorf("Markdown not written: %v", err)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, sampleReport())

	out := buf.String()
	for _, want := range []string{
		"Privacy score: 70 (Moderate privacy)",
		"1 inputs -> 2 outputs",
		" -10  Round-number outputs",
		"Warning: event not published",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q\n%s", want, out)
		}
	}
}
