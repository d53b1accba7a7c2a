package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/txlens/internal/model"
)

// Analyzer produces a privacy report for one transaction id
type Analyzer interface {
	Analyze(ctx context.Context, txid string) (*model.Report, error)
}

// AnalysisJob represents a single transaction analysis
type AnalysisJob struct {
	TxID     string
	Analyzer Analyzer
}

// Execute executes the analysis job
func (j *AnalysisJob) Execute(ctx context.Context) Result {
	report, err := j.Analyzer.Analyze(ctx, j.TxID)
	if err != nil {
		return &AnalysisResult{TxID: j.TxID, Error: err}
	}
	return &AnalysisResult{TxID: j.TxID, Report: report}
}

// AnalysisResult represents the outcome of an analysis job
type AnalysisResult struct {
	TxID   string
	Report *model.Report
	Error  error
}

// GetError returns the error from the analysis result
func (r *AnalysisResult) GetError() error {
	return r.Error
}

// BatchProcessor analyzes many transactions concurrently
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
	progress    func(*AnalysisResult)
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(analyzer Analyzer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
}

// OnProgress registers a callback run as each analysis completes
func (b *BatchProcessor) OnProgress(fn func(*AnalysisResult)) {
	b.progress = fn
}

// ProcessTxIDs analyzes the given ids and returns results in input order
func (b *BatchProcessor) ProcessTxIDs(ctx context.Context, txids []string) []*AnalysisResult {
	if len(txids) == 0 {
		return []*AnalysisResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	if b.progress != nil {
		pool.OnResult(func(r Result) { b.progress(r.(*AnalysisResult)) })
	}
	pool.Start()

	for _, txid := range txids {
		pool.Submit(&AnalysisJob{TxID: txid, Analyzer: b.analyzer})
	}

	results := pool.Wait()

	out := make([]*AnalysisResult, len(results))
	for i, result := range results {
		out[i] = result.(*AnalysisResult)
	}
	return out
}

// ProcessFile reads transaction ids from a file and analyzes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*AnalysisResult, error) {
	txids, err := ReadTxIDsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read txids: %w", err)
	}

	return b.ProcessTxIDs(ctx, txids), nil
}

// ReadTxIDsFromFile reads transaction ids from a file, one per line. Blank
// lines and # comments are skipped; duplicates are dropped case-insensitively.
// Ids are not validated here so that bad lines still show up as failed results.
func ReadTxIDsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var txids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key := strings.ToLower(line)
		if !seen[key] {
			seen[key] = true
			txids = append(txids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return txids, nil
}

// Summarize counts successful and failed results
func Summarize(results []*AnalysisResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Error != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return succeeded, failed
}
