package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-archiver/internal/metrics"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultMinInterval        = time.Second
	DefaultMaxConvertAttempts = 10
)

// Config controls Pipeline behavior.
type Config struct {
	// MinInterval is the minimum time between the start of one fetched item
	// and the start of the next one.
	MinInterval        time.Duration
	MaxConvertAttempts int
}

// Pipeline drives collections through the archive state machine. It is
// strictly sequential: one page, one item and one request at a time.
type Pipeline struct {
	source    Source
	fetcher   ItemFetcher
	store     Store
	converter Converter
	failures  FailureLog
	mirror    Mirror
	clock     Clock
	cfg       Config
	progress  io.Writer
	logger    *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMirror copies every new artifact to m after it is written locally.
func WithMirror(m Mirror) Option {
	return func(p *Pipeline) {
		p.mirror = m
	}
}

// WithProgress sets the writer that receives human readable progress lines.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) {
		p.progress = w
	}
}

// New constructs a Pipeline.
func New(
	source Source,
	fetcher ItemFetcher,
	store Store,
	converter Converter,
	failures FailureLog,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.MaxConvertAttempts <= 0 {
		cfg.MaxConvertAttempts = DefaultMaxConvertAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		source:    source,
		fetcher:   fetcher,
		store:     store,
		converter: converter,
		failures:  failures,
		clock:     clock,
		cfg:       cfg,
		progress:  io.Discard,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run traverses every collection in order. A collection that cannot be
// listed is recorded in RunStats.Errors and the run moves on to the next
// one. The returned error is non-nil only when ctx is done.
func (p *Pipeline) Run(ctx context.Context, collections []Collection) (RunStats, error) {
	stats := RunStats{Errors: make(map[string]error)}
	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("run canceled: %w", err)
		}
		collectionStats, err := p.RunCollection(ctx, collection)
		stats.Collections = append(stats.Collections, collectionStats)
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil || !errors.Is(err, ctxErr) {
				err = errors.Join(err, ctxErr)
			}
			return stats, fmt.Errorf("run canceled: %w", err)
		}
		if err == nil {
			continue
		}
		stats.Errors[collection.Name] = err
		p.logger.Error("collection aborted",
			zap.String("collection", collection.Name),
			zap.Error(err),
		)
	}
	return stats, nil
}

// RunCollection walks one collection from page 1 until the source reports
// no further pages. Item failures never abort the traversal; a listing
// failure does and is returned as a *CollectionFetchError.
func (p *Pipeline) RunCollection(ctx context.Context, collection Collection) (CollectionStats, error) {
	stats := CollectionStats{Collection: collection.Name}
	logger := p.logger.With(zap.String("collection", collection.Name))

	folder, err := p.store.Prepare(collection.Subfolder)
	if err != nil {
		return stats, fmt.Errorf("prepare output folder for %s: %w", collection.Name, err)
	}

	hasMore := true
	for page := 1; hasMore; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		p.printf("%s - Page %d\n", collection.URL, page)
		listing, err := p.source.ListPage(ctx, collection, page)
		if err != nil {
			return stats, &CollectionFetchError{Collection: collection.Name, Page: page, Err: err}
		}
		stats.Pages++
		metrics.ObservePage(collection.Name)
		logger.Debug("listed page", zap.Int("page", page), zap.Int("items", len(listing.IDs)), zap.Bool("has_more", listing.HasMore))

		for _, id := range listing.IDs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			res := p.ProcessItem(ctx, collection, folder, id)
			stats.add(res)
			metrics.ObserveItem(collection.Name, string(res.Outcome))
			p.report(res)
		}
		hasMore = listing.HasMore
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	logger.Info("collection finished",
		zap.Int("pages", stats.Pages),
		zap.Int("done", stats.Done),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// ProcessItem runs a single item through the dedup check and, when it is
// not archived yet, through fetch and conversion. Items that were fetched
// are followed by a wait so that consecutive items start at least
// MinInterval apart.
func (p *Pipeline) ProcessItem(ctx context.Context, collection Collection, folder, id string) ItemResult {
	existing, found, err := p.store.Lookup(folder, id)
	if err != nil {
		return p.fail(ctx, ItemResult{ID: id, Outcome: OutcomeFetchFailed},
			&FetchError{ItemID: id, Err: fmt.Errorf("check existing artifact: %w", err)})
	}
	if found {
		return ItemResult{ID: id, Outcome: OutcomeSkipped, ArtifactPath: existing}
	}

	start := p.clock.Now()
	res := p.archive(ctx, collection, folder, id)
	res.Duration = p.clock.Now().Sub(start)
	p.throttle(ctx, res.Duration)
	return res
}

func (p *Pipeline) archive(ctx context.Context, collection Collection, folder, id string) ItemResult {
	logger := p.logger.With(zap.String("collection", collection.Name), zap.String("item_id", id))

	doc, err := p.fetcher.Fetch(ctx, id)
	if err != nil {
		return p.fail(ctx, ItemResult{ID: id, Outcome: OutcomeFetchFailed}, &FetchError{ItemID: id, Err: err})
	}
	docPath, err := p.store.WriteDocument(folder, doc)
	if err != nil {
		return p.fail(ctx, ItemResult{ID: id, Outcome: OutcomeFetchFailed},
			&FetchError{ItemID: id, Err: fmt.Errorf("write intermediate document: %w", err)})
	}

	artifact, attempts, err := WithRetries(ctx, p.cfg.MaxConvertAttempts,
		func(ctx context.Context, attempt int) (string, error) {
			metrics.ObserveConversionAttempt()
			out, convErr := p.converter.Convert(ctx, docPath)
			if convErr != nil {
				logger.Debug("conversion attempt failed", zap.Int("attempt", attempt), zap.Error(convErr))
			}
			return out, convErr
		})
	if err != nil {
		return p.fail(ctx, ItemResult{ID: id, Outcome: OutcomeConversionFailed, Attempts: attempts},
			&ConversionError{ItemID: id, Attempts: attempts, Err: err})
	}

	if err := p.store.Remove(docPath); err != nil {
		logger.Warn("failed to remove intermediate document", zap.String("path", docPath), zap.Error(err))
	}
	p.mirrorArtifact(ctx, collection, artifact, logger)

	logger.Info("item archived", zap.String("artifact", artifact), zap.Int("attempts", attempts))
	return ItemResult{ID: id, Outcome: OutcomeDone, ArtifactPath: artifact, Attempts: attempts}
}

func (p *Pipeline) mirrorArtifact(ctx context.Context, collection Collection, artifact string, logger *zap.Logger) {
	if p.mirror == nil {
		return
	}
	key := path.Join(collection.Subfolder, filepath.Base(artifact))
	uri, err := p.mirror.Mirror(ctx, artifact, key)
	if err != nil {
		metrics.ObserveMirrorFailure()
		logger.Warn("failed to mirror artifact", zap.String("artifact", artifact), zap.Error(err))
		return
	}
	logger.Debug("artifact mirrored", zap.String("uri", uri))
}

// fail records a failed item. Items interrupted by cancellation are not
// recorded because nothing about the item itself went wrong.
func (p *Pipeline) fail(ctx context.Context, res ItemResult, err error) ItemResult {
	res.Err = err
	if ctx.Err() != nil {
		p.logger.Info("item interrupted",
			zap.String("item_id", res.ID),
			zap.String("outcome", string(res.Outcome)),
			zap.Error(err),
		)
		return res
	}
	if logErr := p.failures.Record(res.ID, err); logErr != nil {
		p.logger.Error("failed to record item failure",
			zap.String("item_id", res.ID),
			zap.NamedError("item_error", err),
			zap.Error(logErr),
		)
	}
	p.logger.Warn("item failed",
		zap.String("item_id", res.ID),
		zap.String("outcome", string(res.Outcome)),
		zap.Error(err),
	)
	return res
}

func (p *Pipeline) throttle(ctx context.Context, elapsed time.Duration) {
	wait := p.cfg.MinInterval - elapsed
	if wait <= 0 {
		return
	}
	metrics.ObserveThrottleDelay(wait)
	if err := p.clock.Sleep(ctx, wait); err != nil {
		p.logger.Debug("throttle interrupted", zap.Error(err))
	}
}

func (p *Pipeline) report(res ItemResult) {
	switch res.Outcome {
	case OutcomeSkipped:
		p.printf("  %s: exists\n", res.ID)
	case OutcomeDone:
		p.printf("  %s: %.2f seconds\n", res.ID, res.Duration.Seconds())
	case OutcomeFetchFailed:
		p.printf("  %s: failed downloading the item (%.2f seconds)\n", res.ID, res.Duration.Seconds())
	case OutcomeConversionFailed:
		p.printf("  %s: failed converting after %d attempts (%.2f seconds)\n",
			res.ID, res.Attempts, res.Duration.Seconds())
	}
}

func (p *Pipeline) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(p.progress, format, args...); err != nil {
		p.logger.Debug("progress write failed", zap.Error(err))
	}
}
