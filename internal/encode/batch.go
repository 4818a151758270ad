package encode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/sftprep/pkg/models"
)

type encodeTask struct {
	index int
	turns []models.Turn
}

type encodeResult struct {
	index   int
	example models.EncodedExample
	err     error
}

// EncodeBatch encodes conversations with a bounded worker pool and returns the
// examples in input order. Conversations with an unsupported role are reported
// and left out; a length mismatch aborts the whole batch.
func (e *Encoder) EncodeBatch(ctx context.Context, conversations [][]models.Turn) ([]models.EncodedExample, models.EncodeReport, error) {
	report := models.EncodeReport{Total: len(conversations)}
	if len(conversations) == 0 {
		return []models.EncodedExample{}, report, nil
	}

	workers := e.concurrency
	if workers > len(conversations) {
		workers = len(conversations)
	}
	e.logger.Info("Encoding conversations", "total", len(conversations), "concurrency", workers, "max_len", e.maxLen)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasksChan := make(chan encodeTask)
	resultsChan := make(chan encodeResult, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			e.worker(ctx, workerID, tasksChan, resultsChan)
		}(i)
	}

	go func() {
		defer close(tasksChan)
		for i, turns := range conversations {
			select {
			case tasksChan <- encodeTask{index: i, turns: turns}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var bar *progressbar.ProgressBar
	if e.progress {
		bar = progressbar.Default(int64(len(conversations)), "Encoding")
	}

	// Reassemble in input order
	pending := make(map[int]encodeResult)
	nextID := 0
	examples := make([]models.EncodedExample, 0, len(conversations))
	var fatal error

	for result := range resultsChan {
		if bar != nil {
			_ = bar.Add(1)
		}
		if fatal != nil {
			continue
		}
		if result.err != nil && errors.Is(result.err, ErrLengthMismatch) {
			fatal = fmt.Errorf("failed to encode conversation %d: %w", result.index, result.err)
			cancel()
			continue
		}

		pending[result.index] = result
		for {
			next, ok := pending[nextID]
			if !ok {
				break
			}
			delete(pending, nextID)
			nextID++

			if next.err != nil {
				e.logger.Warn("Rejected conversation", "index", next.index, "error", next.err)
				report.Rejected++
				report.Rejections = append(report.Rejections, models.Rejection{
					Index:  next.index,
					Reason: next.err.Error(),
				})
				continue
			}
			if next.example.Truncated {
				report.Truncated++
				e.logger.Debug("Truncated conversation",
					"index", next.index,
					"source_length", next.example.SourceLength,
					"max_len", e.maxLen)
			}
			report.Encoded++
			examples = append(examples, next.example)
		}
	}

	if fatal != nil {
		return nil, report, fatal
	}
	if err := ctx.Err(); err != nil && nextID < len(conversations) {
		return nil, report, fmt.Errorf("encoding cancelled: %w", err)
	}

	if report.Truncated > 0 {
		e.logger.Warn("Conversations exceeded max_len and lost their tail",
			"truncated", report.Truncated,
			"max_len", e.maxLen)
	}
	e.logger.Info("Encoding complete",
		"encoded", report.Encoded,
		"rejected", report.Rejected,
		"truncated", report.Truncated)

	return examples, report, nil
}

func (e *Encoder) worker(ctx context.Context, workerID int, tasks <-chan encodeTask, results chan<- encodeResult) {
	workerLogger := e.logger.With("worker_id", workerID)
	workerLogger.Debug("Worker started")

	for task := range tasks {
		select {
		case <-ctx.Done():
			workerLogger.Debug("Worker cancelled")
			return
		default:
		}

		example, err := e.Encode(task.turns)
		results <- encodeResult{index: task.index, example: example, err: err}
	}

	workerLogger.Debug("Worker finished")
}
