// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extraction runs configured extraction agents over curated documents
// on a bounded worker pool. Every (document, agent) pair is a task with a
// lifecycle (pending, running, then one of succeeded, failed, timed_out);
// transitions are compare-and-set so a late worker result can never overwrite
// a timeout or cancellation. Once every task for a document settles, the
// orchestrator assembles a DocumentExtractionReport.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/pdiddy/litriage/internal/agents"
	"github.com/pdiddy/litriage/pkg/types"
)

// retryBase is the first retry delay for transient agent failures; each
// retry doubles it. Overridden in tests.
var retryBase = 200 * time.Millisecond

// Handle tracks one submitted document. Done is closed when the document's
// report has been assembled.
type Handle struct {
	docID string
	done  chan struct{}
}

// DocumentID returns the document this handle tracks.
func (h *Handle) DocumentID() string { return h.docID }

// Done returns a channel closed when the document's report is ready.
func (h *Handle) Done() <-chan struct{} { return h.done }

type job struct {
	run     *docRun
	agentID string
}

type docRun struct {
	doc    types.CuratedDocument
	runID  string
	ctx    context.Context
	cancel context.CancelFunc

	tasks    map[string]*types.ExtractionTask
	results  map[string]types.ExtractionResult
	failures map[string]string
	pending  int

	handle   *Handle
	report   types.DocumentExtractionReport
	finished bool
}

// Orchestrator dispatches extraction tasks to a fixed-size worker pool and
// assembles per-document reports. Safe for concurrent use.
type Orchestrator struct {
	registry *agents.Registry
	cfg      types.ExtractionConfig
	agentCfg map[string]types.AgentConfig
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup

	mu   sync.Mutex
	docs map[string]*docRun
}

// New builds an orchestrator and starts its worker pool. Every agent named in
// cfg must be registered; unknown agents are a configuration error, not a
// runtime one.
func New(registry *agents.Registry, cfg types.ExtractionConfig, logger *slog.Logger) (*Orchestrator, error) {
	if len(cfg.Agents) == 0 {
		return nil, errors.New("no extraction agents configured")
	}
	agentCfg := make(map[string]types.AgentConfig, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if _, ok := registry.Get(a.ID); !ok {
			return nil, fmt.Errorf("agent %q configured but not registered", a.ID)
		}
		if _, dup := agentCfg[a.ID]; dup {
			return nil, fmt.Errorf("agent %q configured twice", a.ID)
		}
		agentCfg[a.ID] = a
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry: registry,
		cfg:      cfg,
		agentCfg: agentCfg,
		log:      logger.With("component", "extraction"),
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(chan job, workers),
		docs:     make(map[string]*docRun),
	}
	o.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go o.worker()
	}
	return o, nil
}

// Shutdown stops the worker pool. In-flight attempts are cancelled;
// documents whose reports were not assembled stay unfinished.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}

// Submit enqueues one task per configured agent for the document and returns
// without blocking. Submitting a document that is already tracked is a no-op
// and returns the original handle.
func (o *Orchestrator) Submit(runID string, doc types.CuratedDocument) *Handle {
	docID := doc.Record.ID()

	o.mu.Lock()
	if run, ok := o.docs[docID]; ok {
		o.mu.Unlock()
		return run.handle
	}

	ctx, cancel := context.WithCancel(o.ctx)
	run := &docRun{
		doc:      doc,
		runID:    runID,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*types.ExtractionTask, len(o.agentCfg)),
		results:  make(map[string]types.ExtractionResult),
		failures: make(map[string]string),
		handle:   &Handle{docID: docID, done: make(chan struct{})},
	}
	for id := range o.agentCfg {
		run.tasks[id] = &types.ExtractionTask{
			DocumentID: docID,
			AgentID:    id,
			State:      types.TaskPending,
		}
		run.pending++
	}
	o.docs[docID] = run
	if run.pending == 0 {
		o.assembleLocked(run)
	}
	o.mu.Unlock()

	o.log.Info("document submitted", "doc", docID, "agents", len(run.tasks))

	for id := range run.tasks {
		j := job{run: run, agentID: id}
		go func() {
			select {
			case o.jobs <- j:
			case <-run.ctx.Done():
			}
		}()
	}
	return run.handle
}

// AwaitReport blocks until the document's report is ready, the context is
// cancelled, or the global timeout elapses. On global timeout the document's
// unfinished tasks are marked timed out and the partial report is returned.
func (o *Orchestrator) AwaitReport(ctx context.Context, docID string) (types.DocumentExtractionReport, error) {
	o.mu.Lock()
	run, ok := o.docs[docID]
	o.mu.Unlock()
	if !ok {
		return types.DocumentExtractionReport{}, fmt.Errorf("unknown document %q", docID)
	}

	timer := time.NewTimer(o.cfg.GlobalTimeout)
	defer timer.Stop()

	select {
	case <-run.handle.done:
	case <-ctx.Done():
		return types.DocumentExtractionReport{}, ctx.Err()
	case <-timer.C:
		o.log.Warn("global timeout elapsed", "doc", docID)
		o.expire(run, types.TaskTimedOut, "global timeout elapsed")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return run.report, nil
}

// CancelDocument cancels all in-flight and pending tasks for the document.
// Already-terminal tasks keep their state; the report assembles with the
// remaining tasks marked failed.
func (o *Orchestrator) CancelDocument(docID string) {
	o.mu.Lock()
	run, ok := o.docs[docID]
	o.mu.Unlock()
	if !ok {
		return
	}
	o.log.Info("document cancelled", "doc", docID)
	o.expire(run, types.TaskFailed, "cancelled")
}

// Tasks returns a snapshot of the document's tasks, sorted by agent ID.
func (o *Orchestrator) Tasks(docID string) []types.ExtractionTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.docs[docID]
	if !ok {
		return nil
	}
	out := make([]types.ExtractionTask, 0, len(run.tasks))
	for _, t := range run.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// expire forces every non-terminal task of the run into state with the given
// reason, then assembles the report.
func (o *Orchestrator) expire(run *docRun, state types.TaskState, reason string) {
	run.cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, t := range run.tasks {
		if t.State.Terminal() {
			continue
		}
		t.State = state
		t.Reason = reason
		run.failures[id] = reason
		run.pending--
	}
	if !run.finished {
		o.assembleLocked(run)
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case j := <-o.jobs:
			o.execute(j)
		}
	}
}

func (o *Orchestrator) execute(j job) {
	run, agentID := j.run, j.agentID
	if !o.cas(run, agentID, types.TaskPending, types.TaskRunning) {
		return
	}
	entry, _ := o.registry.Get(agentID)
	acfg := o.agentCfg[agentID]
	text := run.doc.Text()

	for attempt := 0; ; attempt++ {
		o.mu.Lock()
		run.tasks[agentID].Attempts++
		o.mu.Unlock()

		res, err := o.invoke(run.ctx, entry, text, acfg.Timeout)
		switch {
		case err == nil:
			if verr := agents.Validate(agentID, res, entry.Schema); verr != nil {
				o.log.Warn("agent output rejected", "doc", run.handle.docID, "agent", agentID, "error", verr)
				o.finish(run, agentID, types.TaskFailed, verr.Error())
				return
			}
			o.succeed(run, agentID, res)
			return

		case run.ctx.Err() != nil:
			o.finish(run, agentID, types.TaskFailed, "cancelled")
			return

		case errors.Is(err, context.DeadlineExceeded):
			o.log.Warn("agent timed out", "doc", run.handle.docID, "agent", agentID, "timeout", acfg.Timeout)
			o.finish(run, agentID, types.TaskTimedOut, fmt.Sprintf("timed out after %s", acfg.Timeout))
			return

		case agents.IsTransient(err) && attempt < acfg.MaxRetries:
			delay := backoffDelay(attempt)
			o.log.Warn("agent failed, retrying", "doc", run.handle.docID, "agent", agentID,
				"attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-run.ctx.Done():
				o.finish(run, agentID, types.TaskFailed, "cancelled")
				return
			}

		default:
			o.finish(run, agentID, types.TaskFailed, err.Error())
			return
		}
	}
}

// invoke runs one agent attempt under the per-task timeout. The agent runs in
// its own goroutine so a result arriving after the deadline is discarded
// rather than waited for.
func (o *Orchestrator) invoke(ctx context.Context, entry agents.Entry, text string, timeout time.Duration) (types.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res types.ExtractionResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := entry.Agent.Extract(ctx, text, entry.Schema)
		ch <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return types.ExtractionResult{}, ctx.Err()
	case out := <-ch:
		return out.res, out.err
	}
}

// cas atomically transitions the task from one state to another, reporting
// whether the transition applied.
func (o *Orchestrator) cas(run *docRun, agentID string, from, to types.TaskState) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := run.tasks[agentID]
	if t.State != from {
		return false
	}
	t.State = to
	return true
}

func (o *Orchestrator) succeed(run *docRun, agentID string, res types.ExtractionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := run.tasks[agentID]
	if t.State != types.TaskRunning {
		return
	}
	t.State = types.TaskSucceeded
	run.results[agentID] = res
	o.log.Info("agent succeeded", "doc", run.handle.docID, "agent", agentID, "confidence", res.Confidence)
	o.settleLocked(run)
}

func (o *Orchestrator) finish(run *docRun, agentID string, state types.TaskState, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := run.tasks[agentID]
	if t.State != types.TaskRunning {
		return
	}
	t.State = state
	t.Reason = reason
	run.failures[agentID] = reason
	o.settleLocked(run)
}

func (o *Orchestrator) settleLocked(run *docRun) {
	run.pending--
	if run.pending == 0 && !run.finished {
		o.assembleLocked(run)
	}
}

// assembleLocked builds the document report. Quality is the confidence of
// succeeded agents weighted by configured importance; Complete holds only
// when every required agent succeeded. Caller holds o.mu.
func (o *Orchestrator) assembleLocked(run *docRun) {
	results := make(map[string]types.ExtractionResult, len(run.results))
	for id, r := range run.results {
		results[id] = r
	}
	failures := make(map[string]string, len(run.failures))
	for id, reason := range run.failures {
		failures[id] = reason
	}

	var weighted, totalImportance float64
	complete := true
	var missing []string
	for id, cfg := range o.agentCfg {
		if _, ok := results[id]; ok {
			weighted += cfg.Importance * results[id].Confidence
			totalImportance += cfg.Importance
			continue
		}
		if cfg.Required {
			complete = false
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)

	quality := 0.0
	if totalImportance > 0 {
		quality = weighted / totalImportance
	}

	run.report = types.DocumentExtractionReport{
		DocumentID: run.handle.docID,
		RunID:      run.runID,
		Results:    results,
		Failures:   failures,
		Quality:    quality,
		Complete:   complete,
		Missing:    missing,
		FinishedAt: time.Now().UTC(),
	}
	run.finished = true
	run.cancel()
	close(run.handle.done)

	o.log.Info("report assembled", "doc", run.handle.docID,
		"succeeded", len(results), "failed", len(failures),
		"quality", quality, "complete", complete)
}

// backoffDelay returns the delay before retry attempt+1: retryBase doubled
// per attempt, plus up to 50% jitter.
func backoffDelay(attempt int) time.Duration {
	d := retryBase << attempt
	return d + time.Duration(rand.Int63n(int64(d/2+1)))
}
