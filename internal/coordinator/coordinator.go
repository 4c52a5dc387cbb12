// Package coordinator owns the worker pool. A single loop goroutine holds
// all state: it partitions each request, dispatches it to every worker,
// collects the results and hands them to the aggregator. Workers talk to
// the loop only through events posted by their reader goroutines.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sidecheck/internal/aggregate"
	"sidecheck/internal/config"
	"sidecheck/internal/diag"
	"sidecheck/internal/observ"
	"sidecheck/internal/partition"
	"sidecheck/internal/project"
	"sidecheck/internal/trace"
	"sidecheck/internal/wire"
)

type Options struct {
	Root    string // project root, absolute
	Version string // reported in traces
}

type Coordinator struct {
	cfg     config.Config
	opts    Options
	spawner Spawner
	filter  *diag.FileFilter
	session string
	tr      trace.Tracer
	baseCtx context.Context

	cmds     chan func()
	events   chan event
	loopDone chan struct{}

	// loop-owned
	handles  []*handle
	nextID   uint64
	cur      *request
	starting *startup
	queued   *checkCmd // arrived while workers were starting
	stopped  bool
}

type eventKind uint8

const (
	evReady eventKind = iota + 1
	evResult
	evLost
)

type event struct {
	kind   eventKind
	h      *handle
	ready  *wire.Ready
	result *wire.CheckResult
	err    error
}

type checkCmd struct {
	changed []string
	rebuild bool
	fut     *Future
	parent  uint64
}

// startup tracks workers that have not sent Ready yet.
type startup struct {
	waiting map[int]bool
	done    chan error
	timer   *time.Timer
	err     error // spawn failures recorded before the wait
	span    *trace.Span
}

func (s *startup) timeout() <-chan time.Time {
	if s == nil {
		return nil
	}
	return s.timer.C
}

// New validates cfg, spawns cfg.Workers workers and waits until all of them
// are ready. A configuration problem is returned before anything is spawned.
func New(ctx context.Context, cfg config.Config, spawner Spawner, opts Options) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fi, err := os.Stat(opts.Root); err != nil {
		return nil, &config.Error{Path: cfg.Path, Field: "root", Err: err}
	} else if !fi.IsDir() {
		return nil, &config.Error{Path: cfg.Path, Field: "root", Err: fmt.Errorf("%s is not a directory", opts.Root)}
	}

	c := &Coordinator{
		cfg:      cfg,
		opts:     opts,
		spawner:  spawner,
		filter:   cfg.ReportFilter(),
		session:  uuid.NewString(),
		tr:       trace.FromContext(ctx),
		baseCtx:  context.WithoutCancel(ctx),
		cmds:     make(chan func()),
		events:   make(chan event, 16),
		loopDone: make(chan struct{}),
	}

	span := trace.Begin(c.tr, trace.ScopeSession, "pool_start", trace.ParentFromContext(ctx)).
		WithExtra("session", c.session).
		WithExtra("workers", strconv.Itoa(cfg.Workers))
	procs := make([]Process, cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range procs {
		g.Go(func() error {
			p, err := spawner.Spawn(gctx, c.spec(i))
			if err != nil {
				return fmt.Errorf("spawn worker %d: %w", i, err)
			}
			procs[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, p := range procs {
			if p != nil {
				reap(p)
			}
		}
		span.End(err.Error())
		return nil, err
	}

	st := c.beginStartup(span)
	for i, p := range procs {
		h := newHandle(i, p)
		c.handles = append(c.handles, h)
		c.attach(h)
		st.waiting[i] = true
	}
	go c.loop()

	var err error
	select {
	case err = <-st.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.abort()
		return nil, err
	}
	return c, nil
}

// Session is the unique id of this pool, attached to its traces.
func (c *Coordinator) Session() string { return c.session }

func (c *Coordinator) spec(id int) WorkerSpec {
	return WorkerSpec{
		ID:                id,
		Root:              c.opts.Root,
		EnableLint:        c.cfg.EnableLint,
		CacheDir:          c.cfg.CacheDir,
		FullRebuildOnInit: c.cfg.FullRebuildOnInit,
	}
}

// Check starts a request for the given changed files (absolute or relative
// to the root). An in-flight request is superseded. The returned future
// never blocks the caller; ctx only bounds the hand-off to the loop.
func (c *Coordinator) Check(ctx context.Context, changed []string, rebuild bool) *Future {
	f := newFuture()
	cmd := &checkCmd{changed: slices.Clone(changed), rebuild: rebuild, fut: f, parent: trace.ParentFromContext(ctx)}
	select {
	case c.cmds <- func() { c.dispatch(cmd) }:
	case <-c.loopDone:
		f.resolve(Report{}, ErrClosed)
	case <-ctx.Done():
		f.resolve(Report{}, ctx.Err())
	}
	return f
}

// Restart replaces crashed workers and waits until they are ready. It
// returns ErrBusy while a request is awaiting results.
func (c *Coordinator) Restart(ctx context.Context) error {
	res := make(chan error, 1)
	var st *startup
	ok := c.do(func() {
		if c.starting != nil || (c.cur != nil && c.cur.state == stateAwaiting) {
			res <- ErrBusy
			return
		}
		var spawnErr error
		for i, old := range c.handles {
			if old.alive() {
				continue
			}
			if st == nil {
				st = c.beginStartup(trace.Begin(c.tr, trace.ScopeSession, "pool_restart", 0).WithExtra("session", c.session))
			}
			p, err := c.spawner.Spawn(c.baseCtx, c.spec(i))
			if err != nil {
				spawnErr = errors.Join(spawnErr, fmt.Errorf("spawn worker %d: %w", i, err))
				continue
			}
			h := newHandle(i, p)
			c.handles[i] = h
			c.attach(h)
			st.waiting[i] = true
		}
		if st == nil {
			res <- nil
			return
		}
		st.err = spawnErr
		if len(st.waiting) == 0 {
			c.finishStartup(nil)
		}
		res <- nil
	})
	if !ok {
		return ErrClosed
	}
	if err := <-res; err != nil || st == nil {
		return err
	}
	select {
	case err := <-st.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workers returns a snapshot of every worker slot.
func (c *Coordinator) Workers(ctx context.Context) ([]WorkerHandle, error) {
	res := make(chan []WorkerHandle, 1)
	if !c.do(func() {
		out := make([]WorkerHandle, len(c.handles))
		for i, h := range c.handles {
			out[i] = h.snapshot()
		}
		res <- out
	}) {
		return nil, ErrClosed
	}
	select {
	case ws := <-res:
		return ws, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Degraded reports whether some worker crashed and Restart is needed.
func Degraded(ws []WorkerHandle) bool {
	return slices.ContainsFunc(ws, func(w WorkerHandle) bool { return w.Status == StatusCrashed })
}

// Close shuts every worker down and waits for them to exit. When ctx ends
// first the remaining workers are killed. Pending futures resolve with
// ErrClosed.
func (c *Coordinator) Close(ctx context.Context) error {
	res := make(chan []Process, 1)
	if !c.do(func() { res <- c.shutdown() }) {
		return nil
	}
	procs := <-res

	exited := make(chan struct{})
	go func() {
		for _, p := range procs {
			_ = p.Wait()
		}
		close(exited)
	}()
	select {
	case <-exited:
		trace.Point(c.tr, trace.ScopeSession, "pool_closed", "", "session", c.session)
		return nil
	case <-ctx.Done():
		for _, p := range procs {
			_ = p.Kill()
		}
		<-exited
		return ctx.Err()
	}
}

func (c *Coordinator) abort() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = c.Close(ctx)
}

// do runs fn on the loop goroutine. It is false once the loop has stopped.
func (c *Coordinator) do(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.loopDone:
		return false
	}
}

func (c *Coordinator) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.loopDone:
	}
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for !c.stopped {
		select {
		case fn := <-c.cmds:
			fn()
		case ev := <-c.events:
			c.onEvent(ev)
		case <-c.cur.timeout():
			c.onTimeout()
		case <-c.starting.timeout():
			c.onStartupTimeout()
		}
	}
}

// attach starts the reader and sender goroutines of h.
func (c *Coordinator) attach(h *handle) {
	go c.read(h)
	go c.send(h)
}

func (c *Coordinator) read(h *handle) {
	for {
		env, err := h.conn.Receive()
		if err != nil {
			c.post(event{kind: evLost, h: h, err: err})
			return
		}
		switch env.Kind {
		case wire.KindReady:
			c.post(event{kind: evReady, h: h, ready: env.Ready})
		case wire.KindCheckResult:
			c.post(event{kind: evResult, h: h, result: env.Result})
		default:
			c.post(event{kind: evLost, h: h, err: fmt.Errorf("%w: unexpected %s from worker", wire.ErrMalformed, env.Kind)})
			return
		}
	}
}

// send writes queued messages; the first failure is reported once and the
// rest of the outbox is discarded.
func (c *Coordinator) send(h *handle) {
	failed := false
	for env := range h.outbox {
		if failed {
			continue
		}
		if err := h.conn.Send(env); err != nil {
			failed = true
			c.post(event{kind: evLost, h: h, err: err})
		}
	}
	_ = h.proc.CloseInput()
}

func (c *Coordinator) current(h *handle) bool {
	return h.ID < len(c.handles) && c.handles[h.ID] == h
}

func (c *Coordinator) onEvent(ev event) {
	if !c.current(ev.h) || !ev.h.alive() {
		return // crashed, or a previous generation of a restarted slot
	}
	switch ev.kind {
	case evReady:
		c.onReady(ev.h, ev.ready)
	case evResult:
		c.onResult(ev.h, *ev.result)
	case evLost:
		c.lose(ev.h, ev.err)
	}
}

func (c *Coordinator) beginStartup(span *trace.Span) *startup {
	st := &startup{
		waiting: make(map[int]bool),
		done:    make(chan error, 1),
		timer:   time.NewTimer(c.cfg.StartupTimeout.Duration),
		span:    span,
	}
	c.starting = st
	return st
}

func (c *Coordinator) onReady(h *handle, r *wire.Ready) {
	if h.Status != StatusStarting {
		return
	}
	h.Status = StatusReady
	if r.PID != 0 {
		h.PID = r.PID
	}
	trace.Point(c.tr, trace.ScopeWorker, "worker_ready", r.Version,
		"worker", strconv.Itoa(h.ID), "pid", strconv.Itoa(h.PID))
	if c.starting != nil && c.starting.waiting[h.ID] {
		delete(c.starting.waiting, h.ID)
		if len(c.starting.waiting) == 0 {
			c.finishStartup(nil)
		}
	}
}

func (c *Coordinator) onStartupTimeout() {
	st := c.starting
	ids := make([]int, 0, len(st.waiting))
	for id := range st.waiting {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	st.err = errors.Join(st.err, fmt.Errorf("worker(s) %v not ready after %s", ids, c.cfg.StartupTimeout.Duration))
	clear(st.waiting)
	for _, id := range ids {
		c.lose(c.handles[id], errors.New("not ready in time"))
	}
	c.finishStartup(nil)
}

// finishStartup resolves the pending startup and runs a check that arrived
// while it was in progress.
func (c *Coordinator) finishStartup(err error) {
	st := c.starting
	if st == nil {
		return
	}
	c.starting = nil
	st.timer.Stop()
	err = errors.Join(st.err, err)
	if err != nil {
		st.span.End(err.Error())
	} else {
		st.span.End("")
	}
	st.done <- err
	if q := c.queued; q != nil && !c.stopped {
		c.queued = nil
		c.dispatch(q)
	}
}

func (c *Coordinator) dispatch(cmd *checkCmd) {
	if c.stopped {
		cmd.fut.resolve(Report{}, ErrClosed)
		return
	}
	if c.starting != nil {
		if c.queued != nil {
			cmd.changed = mergeSorted(c.queued.changed, cmd.changed)
			cmd.rebuild = cmd.rebuild || c.queued.rebuild
			c.queued.fut.resolve(Report{}, ErrSuperseded)
		}
		c.queued = cmd
		return
	}
	if old := c.cur; old != nil && old.state == stateAwaiting {
		old.stop()
		old.state = stateSuperseded
		old.span.End("superseded")
		trace.Point(c.tr, trace.ScopeRequest, "superseded", "", "request", strconv.FormatUint(old.id, 10))
		old.fut.resolve(Report{RequestID: old.id}, ErrSuperseded)
	}

	c.nextID++
	req := &request{
		id:      c.nextID,
		fut:     cmd.fut,
		state:   stateAwaiting,
		replied: make(map[int]bool, len(c.handles)),
		tm:      observ.NewTimer(),
		span: trace.Begin(c.tr, trace.ScopeRequest, "request", cmd.parent).
			WithExtra("id", strconv.FormatUint(c.nextID, 10)).
			WithExtra("session", c.session),
	}
	c.cur = req
	phase := req.tm.Begin("dispatch")
	changed := project.NormalizeAll(c.opts.Root, cmd.changed)

	// a degraded pool fails fast until Restart
	var lost []diag.Diagnostic
	for _, h := range c.handles {
		if !h.alive() {
			lost = append(lost, workerLost(h))
		}
	}
	if len(lost) > 0 {
		c.carryAll(changed, cmd.rebuild)
		req.tm.End(phase, "degraded")
		c.fail(req, lost)
		return
	}

	files, err := project.ListGoFiles(c.opts.Root)
	if err != nil {
		c.carryAll(changed, cmd.rebuild)
		req.tm.End(phase, "")
		c.fail(req, []diag.Diagnostic{diag.NewEngineError(diag.IOLoadFileError, fmt.Sprintf("list project files: %v", err))})
		return
	}
	parts := partition.Partition(files, len(c.handles))
	for i, h := range c.handles {
		cr := wire.CheckRequest{RequestID: req.id, Files: parts[i], Changed: changed, FullRebuild: cmd.rebuild}
		cy := h.carry.take()
		cr.Changed = mergeSorted(cy.changed, cr.Changed)
		cr.FullRebuild = cr.FullRebuild || cy.rebuild
		h.Assigned = parts[i]
		if h.idle() {
			c.deliver(h, cr)
			continue
		}
		// still busy with an older request; the queued one never reached
		// the worker so its changes must survive
		if p := h.pending; p != nil {
			cr.Changed = mergeSorted(p.Changed, cr.Changed)
			cr.FullRebuild = cr.FullRebuild || p.FullRebuild
		}
		h.pending = &cr
	}
	req.awaiting = len(c.handles)
	req.timer = time.NewTimer(c.cfg.Timeout.Duration)
	req.tm.End(phase, fmt.Sprintf("%d files, %d changed", len(files), len(changed)))
	req.total = req.tm.Begin("wait")
}

func (c *Coordinator) carryAll(changed []string, rebuild bool) {
	for _, h := range c.handles {
		if h.alive() {
			h.carry.add(changed, rebuild)
		}
	}
}

func (c *Coordinator) deliver(h *handle, cr wire.CheckRequest) {
	h.InFlight = cr.RequestID
	h.Status = StatusChecking
	h.outbox <- wire.RequestMsg(cr)
}

func (c *Coordinator) onResult(h *handle, res wire.CheckResult) {
	h.InFlight = 0
	h.Status = StatusReady
	if p := h.pending; p != nil {
		h.pending = nil
		c.deliver(h, *p)
	}

	req := c.cur
	if req == nil || req.id != res.RequestID || req.state != stateAwaiting {
		trace.Point(c.tr, trace.ScopeWorker, "stale_result", "",
			"worker", strconv.Itoa(h.ID), "request", strconv.FormatUint(res.RequestID, 10))
		return
	}
	if req.replied[h.ID] {
		return
	}
	req.replied[h.ID] = true
	req.results = append(req.results, res)
	note := fmt.Sprintf("%d diagnostics", len(res.Diagnostics))
	if !res.Completed {
		note = "fault"
	}
	req.tm.Add("worker "+strconv.Itoa(h.ID), res.Elapsed, note)
	req.awaiting--
	if req.awaiting == 0 {
		c.complete(req)
	}
}

func (c *Coordinator) complete(req *request) {
	req.stop()
	req.tm.End(req.total, "")
	phase := req.tm.Begin("aggregate")
	slices.SortFunc(req.results, func(a, b wire.CheckResult) int { return a.WorkerID - b.WorkerID })
	ds := aggregate.Aggregate(req.results, c.filter)
	req.tm.End(phase, fmt.Sprintf("%d diagnostics", len(ds)))
	req.state = stateComplete
	req.span.End(strconv.Itoa(len(ds)) + " diagnostics")
	req.fut.resolve(Report{
		RequestID:         req.id,
		Diagnostics:       ds,
		HasBlockingErrors: aggregate.HasBlockingErrors(ds),
		Timings:           req.tm.Report(),
	}, nil)
}

// fail resolves req with the engine diagnostics ds only; partial worker
// output is never reported.
func (c *Coordinator) fail(req *request, ds []diag.Diagnostic) {
	req.stop()
	req.state = stateFailed
	slices.SortFunc(ds, diag.Compare)
	for _, d := range ds {
		trace.Errorf(c.tr, trace.ScopeRequest, "request_failed", "request %d: %s", req.id, d.Message)
	}
	req.span.End("failed")
	req.fut.resolve(Report{
		RequestID:         req.id,
		Diagnostics:       ds,
		HasBlockingErrors: true,
		Failed:            true,
		Timings:           req.tm.Report(),
	}, nil)
}

func (c *Coordinator) onTimeout() {
	req := c.cur
	var waiting []int
	for _, h := range c.handles {
		if !req.replied[h.ID] {
			waiting = append(waiting, h.ID)
		}
	}
	// slow workers keep running; their late results are dropped as stale
	msg := fmt.Sprintf("request %d timed out after %s waiting for worker(s) %v", req.id, c.cfg.Timeout.Duration, waiting)
	c.fail(req, []diag.Diagnostic{diag.NewEngineError(diag.EngineTimeoutExceeded, msg)})
}

func workerLost(h *handle) diag.Diagnostic {
	return diag.NewEngineError(diag.EngineWorkerLost, h.lostMsg)
}

// lose marks h crashed. The current request fails unless h already
// answered it.
func (c *Coordinator) lose(h *handle, err error) {
	if !h.alive() {
		return
	}
	wasStarting := h.Status == StatusStarting
	h.Status = StatusCrashed
	h.lostMsg = fmt.Sprintf("worker %d (pid %d) exited unexpectedly: %v", h.ID, h.PID, err)
	h.InFlight = 0
	h.pending = nil
	h.carry = carry{}
	close(h.outbox)
	reap(h.proc)
	trace.Errorf(c.tr, trace.ScopeWorker, "worker_lost", "%s", h.lostMsg)

	if st := c.starting; st != nil && st.waiting[h.ID] {
		delete(st.waiting, h.ID)
		st.err = errors.Join(st.err, fmt.Errorf("worker %d failed to start: %v", h.ID, err))
		if len(st.waiting) == 0 {
			c.finishStartup(nil)
		}
		return
	}
	if wasStarting {
		return
	}
	if req := c.cur; req != nil && req.state == stateAwaiting && !req.replied[h.ID] {
		c.fail(req, []diag.Diagnostic{workerLost(h)})
	}
}

func reap(p Process) {
	go func() {
		_ = p.Kill()
		_ = p.Wait()
	}()
}

// shutdown stops the loop and returns the processes to wait for.
func (c *Coordinator) shutdown() []Process {
	c.stopped = true
	if req := c.cur; req != nil && req.state == stateAwaiting {
		req.stop()
		req.state = stateFailed
		req.span.End("closed")
		req.fut.resolve(Report{RequestID: req.id}, ErrClosed)
	}
	if q := c.queued; q != nil {
		c.queued = nil
		q.fut.resolve(Report{}, ErrClosed)
	}
	if st := c.starting; st != nil {
		c.starting = nil
		st.timer.Stop()
		st.span.End("closed")
		select {
		case st.done <- ErrClosed:
		default:
		}
	}
	var procs []Process
	for _, h := range c.handles {
		if !h.alive() {
			continue
		}
		h.Status = StatusExited
		h.outbox <- wire.ShutdownMsg()
		close(h.outbox)
		procs = append(procs, h.proc)
	}
	return procs
}
