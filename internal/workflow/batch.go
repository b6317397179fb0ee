package workflow

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// BatchResult aggregates the per-document outcomes of a batch run.
type BatchResult struct {
	States    []*models.WorkflowState
	Processed int
	Failed    int
}

// RunBatch processes a set of local input PDFs with a bounded worker
// pool. Each document gets its own WorkflowState; workers share the
// engine's rate limiter and DMS client but never share state.
func (e *Engine) RunBatch(ctx context.Context, inputs []string, outputDir string) *BatchResult {
	workers := e.cfg.Workers.Count
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan string)
	result := &BatchResult{}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for input := range jobs {
				state, err := e.Run(ctx, input, outputDir)
				if err != nil {
					e.logger.Error().Str("input", input).Err(err).Msg("Run setup failed")
					continue
				}

				mu.Lock()
				result.States = append(result.States, state)
				if state.Failed() {
					result.Failed++
				} else {
					result.Processed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, input := range inputs {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result
		case jobs <- input:
		}
	}
	close(jobs)
	wg.Wait()

	return result
}

// RunFromDMS pulls matching input documents from the document management
// service, downloads them to a private staging directory and processes
// each one. Downloaded inputs carry their document ID through the run so
// post-processing tags land on the right document.
func (e *Engine) RunFromDMS(ctx context.Context, query models.DocumentQuery, outputDir string) (*BatchResult, error) {
	if e.dms == nil {
		return nil, fmt.Errorf("document management service is not configured")
	}

	listing, err := e.dms.QueryDocuments(ctx, query)
	if err != nil {
		return nil, err
	}
	if listing.Count == 0 {
		e.logger.Info().Msg("No matching input documents")
		return &BatchResult{}, nil
	}

	stagingDir, err := os.MkdirTemp("", "statement-separator-inputs-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	ids := make([]int, 0, listing.Count)
	for _, doc := range listing.Documents {
		ids = append(ids, doc.ID)
	}

	downloads, err := e.dms.DownloadMultiple(ctx, ids, stagingDir)
	if err != nil {
		return nil, err
	}
	for _, failure := range downloads.Errors {
		e.logger.Warn().
			Int("document_id", failure.DocumentID).
			Str("error", failure.Error).
			Msg("Input download failed")
	}

	result := &BatchResult{}
	for _, download := range downloads.Downloads {
		if ctx.Err() != nil {
			break
		}

		state, err := e.runDocument(ctx, download.Path, outputDir, download.DocumentID)
		if err != nil {
			e.logger.Error().Int("document_id", download.DocumentID).Err(err).Msg("Run setup failed")
			continue
		}

		result.States = append(result.States, state)
		if state.Failed() {
			result.Failed++
		} else {
			result.Processed++
		}
	}

	return result, nil
}
