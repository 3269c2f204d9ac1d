package batch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config configures an Orchestrator.
type Config struct {
	// Workers is the number of items processed concurrently within a job.
	// Zero means one.
	Workers int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Orchestrator owns job records and runs them. It is safe for concurrent use;
// jobs are executed one at a time in the order Run is called.
type Orchestrator struct {
	mu   sync.RWMutex
	jobs map[string]*jobState

	runMu   sync.Mutex
	workers int
	now     func() time.Time
}

type jobState struct {
	mu              sync.Mutex
	job             *Job
	opts            Options
	exec            executor
	cancelRequested bool
	finished        int
	progress        Progress
	report          *ExpirationReport
	agg             *expirationAggregator
	bc              *broadcaster
	done            chan struct{}

	// beforeDispatch, when set, runs after a worker slot frees and before
	// the cancellation check for item i.
	beforeDispatch func(i int)
}

// New returns an Orchestrator. An invalid Config falls back to defaults.
func New(cfg Config) *Orchestrator {
	if err := cfg.Validate(); err != nil {
		slog.Warn("invalid orchestrator config, using defaults", "error", err)
		cfg = Config{Now: cfg.Now}
	}
	o := &Orchestrator{
		jobs:    make(map[string]*jobState),
		workers: cfg.Workers,
		now:     cfg.Now,
	}
	if o.workers == 0 {
		o.workers = 1
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Submit validates opts, discovers the input files and registers a pending
// job with one item per file, in discovery order. Invalid options and unusable
// input roots are returned as errors and no job is created.
func (o *Orchestrator) Submit(ctx context.Context, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := Validate(opts); err != nil {
		return "", err
	}
	exec, err := newExecutor(opts)
	if err != nil {
		return "", err
	}
	spec := opts.discovery()
	paths, err := Discover(spec.root, spec.extensions, spec.recursive)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	job := &Job{
		ID:         id,
		Type:       opts.JobType(),
		Items:      make([]*Item, len(paths)),
		Status:     JobPending,
		TotalItems: len(paths),
	}
	for i, p := range paths {
		job.Items[i] = &Item{
			ID:        fmt.Sprintf("item-%04d", i+1),
			InputPath: p,
			Status:    ItemPending,
		}
	}

	st := &jobState{
		job:      job,
		opts:     opts,
		exec:     exec,
		bc:       newBroadcaster(),
		done:     make(chan struct{}),
		progress: Progress{JobID: id, TotalItems: len(paths)},
	}
	if eo, ok := opts.(ExpirationReportOptions); ok {
		st.agg = newExpirationAggregator(eo, len(paths))
	}

	o.mu.Lock()
	o.jobs[id] = st
	o.mu.Unlock()

	slog.Info("job submitted", "job", id, "type", job.Type, "items", len(paths), "root", spec.root)
	return id, nil
}

func (o *Orchestrator) state(id string) (*jobState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return st, nil
}

// Run executes a pending job to completion or cancellation and blocks until
// it is terminal. Item failures do not make Run fail; inspect Result instead.
// Cancelling ctx stops dispatch the same way Cancel does.
func (o *Orchestrator) Run(ctx context.Context, id string) error {
	st, err := o.state(id)
	if err != nil {
		return err
	}

	o.runMu.Lock()
	defer o.runMu.Unlock()

	st.mu.Lock()
	if st.job.Status != JobPending {
		status := st.job.Status
		st.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrJobNotPending, id, status)
	}
	start := o.now()
	st.job.StartTime = &start
	if st.cancelRequested {
		o.finishLocked(st)
		st.mu.Unlock()
		return nil
	}
	st.job.Status = JobRunning
	total := st.job.TotalItems
	paths := make([]string, total)
	for i, it := range st.job.Items {
		paths[i] = it.InputPath
	}
	st.mu.Unlock()

	slog.Info("job started", "job", id, "type", st.job.Type, "items", total, "workers", o.workers)

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for i := range paths {
		sem <- struct{}{}
		if st.beforeDispatch != nil {
			st.beforeDispatch(i)
		}
		st.mu.Lock()
		stop := st.cancelRequested || ctx.Err() != nil
		st.mu.Unlock()
		if stop {
			<-sem
			break
		}
		wg.Add(1)
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			o.process(st, i, paths[i])
		}(i)
	}
	wg.Wait()

	st.mu.Lock()
	if ctx.Err() != nil {
		st.cancelRequested = true
	}
	o.finishLocked(st)
	st.mu.Unlock()
	return nil
}

func (o *Orchestrator) process(st *jobState, i int, path string) {
	st.mu.Lock()
	st.job.Items[i].transition(ItemProcessing)
	st.mu.Unlock()

	out := safeExecute(st.exec, i, path)

	st.mu.Lock()
	defer st.mu.Unlock()

	it := st.job.Items[i]
	if out.Err != nil {
		it.transition(ItemError)
		it.ErrorMessage = out.Err.Error()
		st.job.FailedItems++
		slog.Warn("item failed", "job", st.job.ID, "path", path, "error", out.Err)
	} else {
		it.transition(ItemSuccess)
		it.OutputPath = out.OutputPath
		st.job.CompletedItems++
		if st.agg != nil {
			st.agg.add(i, path, out.Certs, *st.job.StartTime)
		}
		slog.Debug("item succeeded", "job", st.job.ID, "path", path, "output", out.OutputPath)
	}

	st.finished++
	st.progress = Progress{
		JobID:           st.job.ID,
		CurrentItem:     st.finished,
		TotalItems:      st.job.TotalItems,
		CurrentFile:     path,
		PercentComplete: float64(st.finished) / float64(st.job.TotalItems) * 100,
	}
	st.bc.publish(st.progress)
}

// finishLocked moves the job to its terminal status. st.mu must be held.
func (o *Orchestrator) finishLocked(st *jobState) {
	job := st.job
	end := o.now()
	job.EndTime = &end
	if st.finished == job.TotalItems && !(st.cancelRequested && job.Status == JobPending) {
		job.Status = JobCompleted
	} else {
		job.Status = JobCancelled
	}
	if job.TotalItems == 0 && job.Status == JobCompleted {
		st.progress.PercentComplete = 100
		st.bc.publish(st.progress)
	}
	if st.agg != nil {
		st.report = st.agg.report(job.ID, *job.StartTime)
	}
	st.bc.close()
	close(st.done)

	slog.Info("job finished",
		"job", job.ID,
		"status", job.Status,
		"succeeded", job.CompletedItems,
		"failed", job.FailedItems,
		"total", job.TotalItems,
		"duration", end.Sub(*job.StartTime),
	)
}

// Cancel requests that a job stop. Items already processing run to completion;
// items not yet started stay pending. Cancelling a terminal job is a no-op.
func (o *Orchestrator) Cancel(id string) error {
	st, err := o.state(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.job.Status.Terminal() {
		return nil
	}
	if !st.cancelRequested {
		slog.Info("job cancellation requested", "job", id)
	}
	st.cancelRequested = true
	return nil
}

// Job returns a snapshot of the job record.
func (o *Orchestrator) Job(id string) (Job, error) {
	st, err := o.state(id)
	if err != nil {
		return Job{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.job.snapshot(), nil
}

// Jobs returns snapshots of every known job.
func (o *Orchestrator) Jobs() []Job {
	o.mu.RLock()
	states := make([]*jobState, 0, len(o.jobs))
	for _, st := range o.jobs {
		states = append(states, st)
	}
	o.mu.RUnlock()

	jobs := make([]Job, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		jobs = append(jobs, st.job.snapshot())
		st.mu.Unlock()
	}
	return jobs
}

// Progress returns the latest progress snapshot.
func (o *Orchestrator) Progress(id string) (Progress, error) {
	st, err := o.state(id)
	if err != nil {
		return Progress{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.progress, nil
}

// Subscribe returns a channel of progress snapshots for the job. Each
// subscriber receives the latest snapshot; intermediate ones may be skipped
// if the reader is slow. The channel is closed when the job finishes or the
// returned function is called.
func (o *Orchestrator) Subscribe(id string) (<-chan Progress, func(), error) {
	st, err := o.state(id)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := st.bc.subscribe()
	return ch, unsubscribe, nil
}

// Done returns a channel closed when the job reaches a terminal status.
func (o *Orchestrator) Done(id string) (<-chan struct{}, error) {
	st, err := o.state(id)
	if err != nil {
		return nil, err
	}
	return st.done, nil
}

// Result returns the summary of a finished job.
func (o *Orchestrator) Result(id string) (*Result, error) {
	st, err := o.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotFinished, id, st.job.Status)
	}
	return buildResult(st.job), nil
}

// ExpirationReport returns the report of a finished expiration job.
// Certificates that failed to parse are counted in the job's failures and
// absent from the report.
func (o *Orchestrator) ExpirationReport(id string) (*ExpirationReport, error) {
	st, err := o.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.job.Type != JobExpirationReport {
		return nil, fmt.Errorf("%w: %s is a %s job", ErrWrongJobType, id, st.job.Type)
	}
	if !st.job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotFinished, id, st.job.Status)
	}
	rep := *st.report
	rep.Items = slices.Clone(st.report.Items)
	return &rep, nil
}
