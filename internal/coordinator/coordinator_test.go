package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"sidecheck/internal/checker"
	"sidecheck/internal/config"
	"sidecheck/internal/diag"
	"sidecheck/internal/worker"
)

const goMod = "module example.com/demo\n\ngo 1.22\n"

// demo has errors in three packages plus one lint finding.
var demo = map[string]string{
	"go.mod":     goMod,
	"a/a.go":     "package a\n\nfunc A() int { return \"x\" }\n",
	"b/index.go": "package b\n\nimport \"example.com/demo/a\"\n\nvar _ = a.A()\n\nvar y int = \"s\"\n",
	"c/c.go":     "package c\n\nfunc C() int {\n\tx := 1\n\tx = x\n\treturn x\n}\n",
	"main.go":    "package main\n\nimport _ \"example.com/demo/b\"\n\nfunc main() {\n\tvar unused int\n}\n",
}

// staticService returns fixed diagnostics filtered to the request scope.
type staticService []diag.Diagnostic

func (s staticService) Check(_ context.Context, req checker.Request) ([]diag.Diagnostic, error) {
	var out []diag.Diagnostic
	for _, d := range s {
		if slices.Contains(req.Files, d.File) {
			out = append(out, d)
		}
	}
	return out, nil
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func demoRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, demo)
	return root
}

func testConfig(workers int) config.Config {
	cfg := config.Default()
	cfg.Workers = workers
	cfg.StartupTimeout = config.Duration{Duration: 10 * time.Second}
	cfg.Timeout = config.Duration{Duration: 30 * time.Second}
	return cfg
}

func newPool(t *testing.T, cfg config.Config, sp Spawner, root string) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), cfg, sp, Options{Root: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func run(t *testing.T, c *Coordinator, changed []string, rebuild bool) Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	rep, err := c.Check(ctx, changed, rebuild).Wait(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return rep
}

func messages(ds []diag.Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

func TestWorkerCountInvariance(t *testing.T) {
	root := demoRoot(t)
	for _, lint := range []bool{false, true} {
		var got [][]diag.Diagnostic
		for _, n := range []int{1, 4} {
			cfg := testConfig(n)
			cfg.EnableLint = lint
			c := newPool(t, cfg, InProcessSpawner{}, root)
			rep := run(t, c, nil, false)
			if rep.Failed {
				t.Fatalf("lint=%v workers=%d: request failed: %v", lint, n, messages(rep.Diagnostics))
			}
			got = append(got, rep.Diagnostics)
		}
		if !slices.Equal(got[0], got[1]) {
			t.Fatalf("lint=%v: workers=1 and workers=4 differ:\n%v\n%v", lint, messages(got[0]), messages(got[1]))
		}
		if len(got[0]) < 3 {
			t.Fatalf("lint=%v: expected at least 3 diagnostics, got %v", lint, messages(got[0]))
		}
		hasLint := slices.ContainsFunc(got[0], func(d diag.Diagnostic) bool { return d.Code == diag.LintFinding })
		if hasLint != lint {
			t.Fatalf("lint=%v: lint findings present=%v: %v", lint, hasLint, messages(got[0]))
		}
	}
}

func TestReportFilesAllowList(t *testing.T) {
	root := demoRoot(t)
	cfg := testConfig(3)
	cfg.ReportFiles = []string{"**/index.go"}
	c := newPool(t, cfg, InProcessSpawner{}, root)

	rep := run(t, c, nil, false)
	if len(rep.Diagnostics) != 1 {
		t.Fatalf("expected exactly 1 diagnostic, got %v", messages(rep.Diagnostics))
	}
	if rep.Diagnostics[0].File != "b/index.go" {
		t.Fatalf("unexpected file %q", rep.Diagnostics[0].File)
	}
	if !rep.HasBlockingErrors {
		t.Fatalf("expected blocking errors")
	}
}

func TestCheckerFaultIsIsolated(t *testing.T) {
	root := demoRoot(t)
	sp := InProcessSpawner{NewService: func(WorkerSpec) (checker.Service, error) {
		return checker.Faulty{Message: "I'm an error!"}, nil
	}}
	c := newPool(t, testConfig(3), sp, root)

	rep := run(t, c, nil, false)
	if rep.Failed {
		t.Fatalf("a checker fault must not fail the request")
	}
	if len(rep.Diagnostics) != 1 {
		t.Fatalf("expected exactly 1 diagnostic, got %v", messages(rep.Diagnostics))
	}
	d := rep.Diagnostics[0]
	if !strings.Contains(d.Message, "I'm an error!") || d.Code != diag.EngineCheckerFault {
		t.Fatalf("unexpected diagnostic %s (%s)", d, d.Code)
	}
}

func TestDefaultProjectReportsErrors(t *testing.T) {
	root := demoRoot(t)
	c := newPool(t, config.Default(), InProcessSpawner{}, root)
	rep := run(t, c, nil, false)
	if len(rep.Diagnostics) == 0 || !rep.HasBlockingErrors {
		t.Fatalf("expected errors, got %v", messages(rep.Diagnostics))
	}
	if len(rep.Timings.Phases) == 0 {
		t.Fatalf("expected timings")
	}
}

func TestIncrementalEditInDependency(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":  goMod,
		"a/a.go":  "package a\n\nfunc A() int { return 1 }\n",
		"main.go": "package main\n\nimport \"example.com/demo/a\"\n\nfunc main() {\n\tvar s string = a.A()\n\t_ = s\n}\n",
	})
	c := newPool(t, testConfig(2), InProcessSpawner{}, root)

	rep := run(t, c, nil, false)
	if len(rep.Diagnostics) != 1 || rep.Diagnostics[0].File != "main.go" {
		t.Fatalf("expected one error in main.go, got %v", messages(rep.Diagnostics))
	}

	writeTree(t, root, map[string]string{"a/a.go": "package a\n\nfunc A() string { return \"\" }\n"})
	rep = run(t, c, []string{filepath.Join(root, "a", "a.go")}, false)
	if len(rep.Diagnostics) != 0 {
		t.Fatalf("expected a clean build, got %v", messages(rep.Diagnostics))
	}
}

// recordingSpawner counts spawns.
type recordingSpawner struct {
	inner Spawner
	mu    sync.Mutex
	calls int
}

func (s *recordingSpawner) Spawn(ctx context.Context, spec WorkerSpec) (Process, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.inner.Spawn(ctx, spec)
}

func (s *recordingSpawner) spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitDegraded(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		ws, err := c.Workers(context.Background())
		if err != nil {
			t.Fatalf("Workers: %v", err)
		}
		if Degraded(ws) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pool never became degraded")
}

func TestWorkerLostFailsRequest(t *testing.T) {
	root := demoRoot(t)
	sp := &recordingSpawner{inner: InProcessSpawner{}}
	c := newPool(t, testConfig(2), sp, root)

	ws, err := c.Workers(context.Background())
	if err != nil {
		t.Fatalf("Workers: %v", err)
	}
	if len(ws) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(ws))
	}
	_ = c.handleProc(1).Kill()
	waitDegraded(t, c)

	for range 2 {
		rep := run(t, c, nil, false)
		if !rep.Failed || !rep.HasBlockingErrors {
			t.Fatalf("expected a failed request, got %+v", rep)
		}
		if len(rep.Diagnostics) != 1 {
			t.Fatalf("expected 1 diagnostic, got %v", messages(rep.Diagnostics))
		}
		d := rep.Diagnostics[0]
		if d.Code != diag.EngineWorkerLost || !strings.Contains(d.Message, "worker 1") {
			t.Fatalf("unexpected diagnostic %s (%s)", d, d.Code)
		}
	}

	if err := c.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if n := sp.spawned(); n != 3 {
		t.Fatalf("expected one respawn, got %d spawns", n)
	}
	rep := run(t, c, nil, false)
	if rep.Failed {
		t.Fatalf("request after restart failed: %v", messages(rep.Diagnostics))
	}
	if len(rep.Diagnostics) == 0 {
		t.Fatalf("expected diagnostics after restart")
	}
}

// handleProc reads the process of slot id through the loop.
func (c *Coordinator) handleProc(id int) Process {
	res := make(chan Process, 1)
	if !c.do(func() { res <- c.handles[id].proc }) {
		return nil
	}
	return <-res
}

// gatedService blocks its first call until release is closed and records
// every request it sees.
type gatedService struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []checker.Request
}

func (s *gatedService) Check(ctx context.Context, req checker.Request) ([]diag.Diagnostic, error) {
	s.mu.Lock()
	s.seen = append(s.seen, req)
	first := len(s.seen) == 1
	s.mu.Unlock()
	if first {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func (s *gatedService) requests() []checker.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.seen)
}

func gatedSpawner(svc *gatedService) InProcessSpawner {
	return InProcessSpawner{NewService: func(WorkerSpec) (checker.Service, error) { return svc, nil }}
}

func TestTimeoutKeepsWorkerUsable(t *testing.T) {
	root := demoRoot(t)
	svc := &gatedService{release: make(chan struct{})}
	cfg := testConfig(1)
	cfg.Timeout = config.Duration{Duration: 50 * time.Millisecond}
	c := newPool(t, cfg, gatedSpawner(svc), root)

	rep := run(t, c, nil, false)
	if !rep.Failed || len(rep.Diagnostics) != 1 || rep.Diagnostics[0].Code != diag.EngineTimeoutExceeded {
		t.Fatalf("expected a timeout, got %+v", rep)
	}
	if !strings.Contains(rep.Diagnostics[0].Message, "timed out") {
		t.Fatalf("unexpected message %q", rep.Diagnostics[0].Message)
	}

	close(svc.release)
	rep = run(t, c, nil, false)
	if rep.Failed {
		t.Fatalf("worker should still be usable: %v", messages(rep.Diagnostics))
	}
	ws, _ := c.Workers(context.Background())
	if Degraded(ws) {
		t.Fatalf("a timeout must not crash the worker")
	}
}

// blockingService announces each call on started and holds it until
// release is closed or the worker is killed.
type blockingService struct {
	id      int
	started chan<- int
	release <-chan struct{}
}

func (s blockingService) Check(ctx context.Context, _ checker.Request) ([]diag.Diagnostic, error) {
	select {
	case s.started <- s.id:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func TestWorkerCrashDuringCheckFailsImmediately(t *testing.T) {
	root := demoRoot(t)
	started := make(chan int, 4)
	release := make(chan struct{})
	sp := InProcessSpawner{NewService: func(spec WorkerSpec) (checker.Service, error) {
		return blockingService{id: spec.ID, started: started, release: release}, nil
	}}
	cfg := testConfig(2)
	cfg.Timeout = config.Duration{Duration: 20 * time.Second}
	c := newPool(t, cfg, sp, root)
	// runs before the pool's Close so worker 0 can drain
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	fut := c.Check(ctx, nil, false)
	for range 2 {
		select {
		case <-started:
		case <-ctx.Done():
			t.Fatalf("workers never received the request")
		}
	}

	killed := time.Now()
	_ = c.handleProc(1).Kill()
	rep, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(killed); elapsed > 5*time.Second {
		t.Fatalf("request failed after %s, expected it to fail on the crash", elapsed)
	}
	if !rep.Failed || len(rep.Diagnostics) != 1 {
		t.Fatalf("expected one failure diagnostic, got %+v", rep)
	}
	if d := rep.Diagnostics[0]; d.Code != diag.EngineWorkerLost || !strings.Contains(d.Message, "worker 1") {
		t.Fatalf("unexpected diagnostic %s (%s)", d, d.Code)
	}
}

func TestSupersededRequestsMergeChanges(t *testing.T) {
	root := demoRoot(t)
	svc := &gatedService{release: make(chan struct{})}
	c := newPool(t, testConfig(1), gatedSpawner(svc), root)
	ctx := context.Background()

	f1 := c.Check(ctx, []string{"a/a.go"}, false)
	f2 := c.Check(ctx, []string{"b/index.go"}, false)
	f3 := c.Check(ctx, []string{"c/c.go"}, false)
	for i, f := range []*Future{f1, f2} {
		if _, err := f.Wait(ctx); !errors.Is(err, ErrSuperseded) {
			t.Fatalf("request %d: expected ErrSuperseded, got %v", i+1, err)
		}
	}
	close(svc.release)
	rep, err := f3.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if rep.RequestID != 3 || rep.Failed {
		t.Fatalf("unexpected report %+v", rep)
	}

	reqs := svc.requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests to reach the worker, got %d", len(reqs))
	}
	if !slices.Equal(reqs[0].Changed, []string{"a/a.go"}) {
		t.Fatalf("first request changed = %v", reqs[0].Changed)
	}
	if !slices.Equal(reqs[1].Changed, []string{"b/index.go", "c/c.go"}) {
		t.Fatalf("queued changes were lost: %v", reqs[1].Changed)
	}
}

func TestCloseRejectsFurtherChecks(t *testing.T) {
	root := demoRoot(t)
	c, err := New(context.Background(), testConfig(2), InProcessSpawner{}, Options{Root: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := c.Check(context.Background(), nil, false).Wait(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := c.Restart(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Restart, got %v", err)
	}
}

func TestConfigurationErrorsSpawnNothing(t *testing.T) {
	root := demoRoot(t)
	cases := []struct {
		name string
		cfg  func() config.Config
		root string
	}{
		{"zero workers", func() config.Config { return testConfig(0) }, root},
		{"bad glob", func() config.Config {
			c := testConfig(1)
			c.ReportFiles = []string{"[unclosed"}
			return c
		}, root},
		{"missing root", func() config.Config { return testConfig(1) }, filepath.Join(root, "nope")},
	}
	for _, tc := range cases {
		sp := &recordingSpawner{inner: InProcessSpawner{}}
		_, err := New(context.Background(), tc.cfg(), sp, Options{Root: tc.root})
		if !errors.Is(err, config.ErrInvalid) {
			t.Fatalf("%s: expected a configuration error, got %v", tc.name, err)
		}
		var cerr *config.Error
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: expected *config.Error, got %T", tc.name, err)
		}
		if n := sp.spawned(); n != 0 {
			t.Fatalf("%s: %d workers spawned", tc.name, n)
		}
	}
}

func TestStartupTimeout(t *testing.T) {
	root := demoRoot(t)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	sp := InProcessSpawner{NewService: func(WorkerSpec) (checker.Service, error) {
		<-block
		return staticService(nil), nil
	}}
	cfg := testConfig(2)
	cfg.StartupTimeout = config.Duration{Duration: 50 * time.Millisecond}
	_, err := New(context.Background(), cfg, sp, Options{Root: root})
	if err == nil || !strings.Contains(err.Error(), "not ready after") {
		t.Fatalf("expected a startup timeout, got %v", err)
	}
}

type failingSpawner struct{}

func (failingSpawner) Spawn(context.Context, WorkerSpec) (Process, error) {
	return nil, errors.New("no more processes")
}

func TestSpawnFailure(t *testing.T) {
	root := demoRoot(t)
	_, err := New(context.Background(), testConfig(2), failingSpawner{}, Options{Root: root})
	if err == nil || !strings.Contains(err.Error(), "no more processes") {
		t.Fatalf("expected spawn error, got %v", err)
	}
}

func TestInitFailureBecomesFault(t *testing.T) {
	root := demoRoot(t)
	sp := InProcessSpawner{NewService: func(WorkerSpec) (checker.Service, error) {
		return nil, errors.New("no toolchain")
	}}
	c := newPool(t, testConfig(2), sp, root)
	rep := run(t, c, nil, false)
	if rep.Failed || len(rep.Diagnostics) != 1 {
		t.Fatalf("expected one fault diagnostic, got %+v", rep)
	}
	if !strings.Contains(rep.Diagnostics[0].Message, "no toolchain") {
		t.Fatalf("unexpected message %q", rep.Diagnostics[0].Message)
	}
}

// helperEnv turns the test binary into a worker process.
const helperEnv = "SIDECHECK_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		svc := staticService{diag.NewError(diag.TypeError, "main.go", 1, 1, "from a child process")}
		build := worker.ServiceFromEnv(func() (checker.Service, error) { return svc, nil })
		err := worker.Serve(context.Background(), duplex{os.Stdin, os.Stdout}, build, worker.Options{})
		if err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestProcessSpawner(t *testing.T) {
	root := demoRoot(t)
	sp := ProcessSpawner{Executable: os.Args[0], Env: []string{helperEnv + "=1"}}
	c := newPool(t, testConfig(2), sp, root)

	ws, err := c.Workers(context.Background())
	if err != nil {
		t.Fatalf("Workers: %v", err)
	}
	for _, w := range ws {
		if w.PID == os.Getpid() || w.Status != StatusReady {
			t.Fatalf("worker %d: pid=%d status=%s", w.ID, w.PID, w.Status)
		}
	}

	rep := run(t, c, nil, false)
	if len(rep.Diagnostics) != 1 || rep.Diagnostics[0].Message != "from a child process" {
		t.Fatalf("unexpected diagnostics %v", messages(rep.Diagnostics))
	}
}

func TestProcessSpawnerFaultInjection(t *testing.T) {
	root := demoRoot(t)
	sp := ProcessSpawner{
		Executable: os.Args[0],
		Env:        []string{helperEnv + "=1", worker.FaultEnv + "=I'm an error!"},
	}
	c := newPool(t, testConfig(2), sp, root)

	rep := run(t, c, nil, false)
	if rep.Failed || len(rep.Diagnostics) != 1 || !strings.Contains(rep.Diagnostics[0].Message, "I'm an error!") {
		t.Fatalf("unexpected report %+v", rep)
	}
}
