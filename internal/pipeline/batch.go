package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/portalcapture/internal/model"
)

// ErrDuplicateIdentity is returned when two batch entries would write the
// same artifact. Such runs are not serialized, so they are refused up front.
var ErrDuplicateIdentity = errors.New("duplicate identity in batch")

// KeyFunc returns the resource a run writes, normally its artifact path.
// Two credentials with the same key cannot be in one batch.
type KeyFunc func(cred model.Credential) (string, error)

// RunFunc performs one complete capture for cred and returns the artifact path.
type RunFunc func(ctx context.Context, cred model.Credential) (string, error)

// BatchResult is the outcome of one batch entry.
type BatchResult struct {
	Identity     string
	ArtifactPath string
	Err          error
	Duration     time.Duration
}

// BatchProcessor runs captures for many credentials concurrently.
//
// Design decision: errgroup.SetLimit bounds how many isolated runs exist
// at once, and a token bucket spaces out their start so the shared portal
// does not see all logins in the same second.
type BatchProcessor struct {
	run         RunFunc
	key         KeyFunc
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithKeyFunc sets how duplicate entries are detected. The default key is
// the identity.
func WithKeyFunc(fn KeyFunc) BatchOption {
	return func(b *BatchProcessor) {
		if fn != nil {
			b.key = fn
		}
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithStartRate limits how many runs start per second. 0 disables pacing.
func WithStartRate(perSecond float64, burst int) BatchOption {
	return func(b *BatchProcessor) {
		if perSecond <= 0 {
			b.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewBatchProcessor creates a new BatchProcessor around run.
func NewBatchProcessor(run RunFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		run:         run,
		key:         identityKey,
		concurrency: 2,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch runs every credential and returns the results in input order.
// Individual failures are recorded in the results; the returned error is
// only set for duplicate identities or cancellation.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, creds []model.Credential) ([]BatchResult, error) {
	results := make([]BatchResult, len(creds))
	err := bp.ProcessBatchWithCallback(ctx, creds, func(r BatchResult, i int) {
		results[i] = r
	})
	return results, err
}

// ProcessBatchWithCallback runs every credential and calls callback as each
// one completes. The callback is called from worker goroutines.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	creds []model.Credential,
	callback func(result BatchResult, index int),
) error {
	if err := bp.checkDuplicates(creds); err != nil {
		return err
	}

	bp.logger.Info("starting batch", "total", len(creds), "concurrency", bp.concurrency)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, cred := range creds {
		g.Go(func() error {
			if bp.limiter != nil {
				if err := bp.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			start := time.Now()
			path, err := bp.run(ctx, cred)
			result := BatchResult{
				Identity:     cred.Identity,
				ArtifactPath: path,
				Err:          err,
				Duration:     time.Since(start),
			}
			if err != nil {
				bp.logger.Warn("capture failed", "credential", cred, "index", i+1, "error", err)
			} else {
				bp.logger.Info("capture completed", "credential", cred, "index", i+1, "path", path)
			}

			callback(result, i)
			// Failures stay in the result so the other runs continue.
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch complete", "total", len(creds), "elapsed", time.Since(startTime))
	return err
}

func identityKey(cred model.Credential) (string, error) {
	return cred.Identity, nil
}

// checkDuplicates refuses batches in which two entries share a key.
// An entry whose key cannot be computed is left to fail in its own run.
func (bp *BatchProcessor) checkDuplicates(creds []model.Credential) error {
	seen := make(map[string]string, len(creds))
	for _, c := range creds {
		k, err := bp.key(c)
		if err != nil {
			continue
		}
		if prev, ok := seen[k]; ok {
			if prev == c.Identity {
				return fmt.Errorf("%w: %q", ErrDuplicateIdentity, c.Identity)
			}
			return fmt.Errorf("%w: %q and %q both write %s", ErrDuplicateIdentity, prev, c.Identity, k)
		}
		seen[k] = c.Identity
	}
	return nil
}
