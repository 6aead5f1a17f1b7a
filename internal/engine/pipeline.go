package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultFetchTimeout = 2 * time.Minute

// Options tune a Pipeline. Zero values select the defaults.
type Options struct {
	// BatchSize is the number of fetches in flight per batch.
	BatchSize int
	// FailFast aborts the run on the first per-object failure.
	FailFast bool
	// FetchTimeout bounds waiting for a response and each read of its body.
	// Negative disables it.
	FetchTimeout time.Duration
	Duplicates   DuplicatePolicy
	// Filter, when set, drops descriptors it does not match before batching.
	Filter *Filter
}

type PipelineOption func(*Pipeline)

func WithReporter(reporter Reporter) PipelineOption {
	return func(p *Pipeline) {
		p.reporter = reporter
	}
}

// Pipeline exports a catalog into a single archive.
type Pipeline struct {
	logger      *zap.Logger
	catalog     Catalog
	fetcher     Fetcher
	newArchiver ArchiverFactory
	reporter    Reporter
	opts        Options
}

func NewPipeline(logger *zap.Logger, catalog Catalog, fetcher Fetcher, newArchiver ArchiverFactory, opts Options, popts ...PipelineOption) (*Pipeline, error) {
	if catalog == nil || fetcher == nil || newArchiver == nil {
		return nil, errors.New("catalog, fetcher and archiver are required")
	}

	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	policy, err := ParseDuplicatePolicy(string(opts.Duplicates))
	if err != nil {
		return nil, err
	}
	opts.Duplicates = policy

	p := &Pipeline{
		logger:      logger,
		catalog:     catalog,
		fetcher:     fetcher,
		newArchiver: newArchiver,
		reporter:    NopReporter{},
		opts:        opts,
	}
	for _, opt := range popts {
		opt(p)
	}
	p.reporter = safeReporter{inner: p.reporter, logger: logger}

	return p, nil
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// List calls the catalog once and returns the filtered descriptors paired with
// their entry names, in listing order.
func (p *Pipeline) List(ctx context.Context) ([]Item, error) {
	descs, err := p.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	listed := len(descs)
	if p.opts.Filter != nil {
		descs, err = p.opts.Filter.Apply(descs)
		if err != nil {
			return nil, err
		}
	}

	items, err := ResolveEntryNames(descs, p.opts.Duplicates)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("listed objects", zap.Int("listed", listed), zap.Int("selected", len(items)))
	return items, nil
}

// Run lists the catalog, fetches every object in batches and streams them as
// one archive into out. out is closed on success and aborted otherwise.
//
// Per-object failures without FailFast are recorded in the Result and do not
// fail the run. An aborted run returns a *RunError.
func (p *Pipeline) Run(ctx context.Context, out Output) (*Result, error) {
	r := &run{
		p:     p,
		batch: -1,
		result: &Result{
			RunID:     uuid.NewString(),
			State:     StateIdle,
			StartedAt: time.Now().UTC(),
		},
	}
	r.logger = p.logger.With(zap.String("run_id", r.result.RunID))

	err := r.execute(ctx, out)
	r.result.Duration = time.Since(r.result.StartedAt)
	return r.result, err
}

type run struct {
	p      *Pipeline
	logger *zap.Logger
	result *Result
	items  []Item
	batch  int
}

func (r *run) execute(ctx context.Context, out Output) error {
	r.transition(StateListing)

	items, err := r.p.List(ctx)
	if err != nil {
		return r.abort(out, nil, err)
	}
	r.items = items
	r.result.Total = len(items)

	batches, err := Batches(items, r.p.opts.BatchSize)
	if err != nil {
		return r.abort(out, nil, err)
	}
	r.result.Batches = len(batches)

	r.logger.Info("starting export",
		zap.Int("objects", len(items)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", r.p.opts.BatchSize),
		zap.Bool("fail_fast", r.p.opts.FailFast),
	)

	archiver := r.p.newArchiver(out)

	if err := r.runBatches(ctx, batches, archiver); err != nil {
		return r.abort(out, archiver, err)
	}

	r.transition(StateFinalizing)
	if err := archiver.Finalize(); err != nil {
		return r.abort(out, nil, fmt.Errorf("failed to finalize archive: %w", err))
	}
	if err := out.Close(); err != nil {
		r.transition(StateAborted)
		return r.runError(StateFinalizing, fmt.Errorf("%w: failed to close output: %w", ErrSinkClosedPrematurely, err))
	}
	r.transition(StateDone)

	r.logger.Info("export completed",
		zap.Int("archived", len(r.result.Succeeded())),
		zap.Int("failed", len(r.result.Failed())),
		zap.Duration("duration", time.Since(r.result.StartedAt)),
	)
	return nil
}

func (r *run) runBatches(ctx context.Context, batches [][]Item, archiver Archiver) error {
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrSinkClosedPrematurely, context.Cause(ctx))
		}

		r.batch = i
		r.transition(StateBatching)
		r.p.reporter.BatchStarted(i, len(batch))

		outcomes, err := r.runBatch(ctx, i, batch, archiver)
		r.result.Entries = append(r.result.Entries, outcomes...)

		r.p.reporter.BatchCompleted(i)
		if err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkClosedPrematurely, context.Cause(ctx))
	}
	return nil
}

// runBatch starts every fetch of the batch and returns once all of them
// settled. Outcomes are in batch order; archive order is completion order.
func (r *run) runBatch(ctx context.Context, index int, batch []Item, archiver Archiver) ([]EntryOutcome, error) {
	outcomes := make([]EntryOutcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range batch {
		g.Go(func() error {
			outcomes[i] = r.process(gctx, index, item, archiver)

			err := outcomes[i].Err
			if err != nil && (r.p.opts.FailFast || IsFatal(err)) {
				return err
			}
			return nil
		})
	}

	return outcomes, g.Wait()
}

func (r *run) process(ctx context.Context, batch int, item Item, archiver Archiver) EntryOutcome {
	outcome := EntryOutcome{ID: item.Descriptor.ID, Name: item.EntryName, Batch: batch}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stream, err := r.fetch(ctx, cancel, item.Descriptor)
	if err != nil {
		return r.fail(outcome, fmt.Errorf("failed to fetch object %s: %w", item.Descriptor.ID, err))
	}

	header := EntryHeader{Name: item.EntryName, Modified: item.Descriptor.Uploaded}
	n, err := archiver.Append(ctx, header, stream)
	if err != nil {
		var timeout *fetchTimeoutError
		if cause := context.Cause(ctx); errors.As(cause, &timeout) && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		return r.fail(outcome, fmt.Errorf("failed to archive object %s: %w", item.Descriptor.ID, err))
	}

	outcome.Bytes = n
	r.p.reporter.EntryCompleted(item.EntryName, n)
	return outcome
}

// fetch opens the object stream. The timeout covers waiting for the stream and
// every subsequent read; time spent queued behind other entries does not count.
func (r *run) fetch(ctx context.Context, cancel context.CancelCauseFunc, desc ObjectDescriptor) (io.ReadCloser, error) {
	timeout := r.p.opts.FetchTimeout
	if timeout < 0 {
		return r.p.fetcher.Fetch(ctx, desc)
	}

	timer := time.AfterFunc(timeout, func() {
		cancel(&fetchTimeoutError{timeout: timeout})
	})

	stream, err := r.p.fetcher.Fetch(ctx, desc)
	if !timer.Stop() && err != nil {
		return nil, fmt.Errorf("%w: %w", context.Cause(ctx), err)
	}
	if err != nil {
		return nil, err
	}

	return &idleTimeoutReader{ReadCloser: stream, timer: timer, timeout: timeout}, nil
}

func (r *run) fail(outcome EntryOutcome, err error) EntryOutcome {
	outcome.Err = err
	outcome.Error = err.Error()
	r.p.reporter.EntryFailed(outcome.Name, err)
	return outcome
}

// abort moves the run to Aborted. A started archive is still finalized so the
// entries completed so far form a readable archive, then out is torn down.
func (r *run) abort(out Output, archiver Archiver, cause error) error {
	from := r.result.State
	r.transition(StateAborted)

	if archiver != nil {
		if err := archiver.Finalize(); err != nil && !errors.Is(cause, ErrArchiveWrite) {
			r.logger.Warn("failed to finalize partial archive", zap.Error(err))
		}
	}

	if err := abortOutput(out, cause); err != nil {
		r.logger.Debug("failed to tear down output", zap.Error(err))
	}

	return r.runError(from, cause)
}

func (r *run) runError(from State, cause error) error {
	batch := r.batch
	if from != StateBatching {
		batch = -1
	}

	err := &RunError{
		State:   from,
		Batch:   batch,
		Err:     cause,
		Skipped: r.result.Skipped(r.items),
	}
	r.logger.Error("export aborted", zap.Error(err), zap.Strings("skipped", err.Skipped))
	return err
}

func (r *run) transition(to State) {
	from := r.result.State
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("invalid pipeline transition from %s to %s", from, to))
	}
	r.result.State = to
	r.logger.Debug("pipeline state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("batch", r.batch),
	)
}

func abortOutput(out Output, cause error) error {
	if a, ok := out.(Aborter); ok {
		return a.Abort(cause)
	}
	return out.Close()
}

type fetchTimeoutError struct {
	timeout time.Duration
}

func (e *fetchTimeoutError) Error() string {
	return fmt.Sprintf("no progress within %s", e.timeout)
}

func (e *fetchTimeoutError) Unwrap() error {
	return ErrFetchUnavailable
}

// idleTimeoutReader arms the timer around every Read.
type idleTimeoutReader struct {
	io.ReadCloser
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	r.timer.Reset(r.timeout)
	n, err := r.ReadCloser.Read(p)
	r.timer.Stop()
	return n, err
}

func (r *idleTimeoutReader) Close() error {
	r.timer.Stop()
	return r.ReadCloser.Close()
}
