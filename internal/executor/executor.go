// Package executor runs scenarios against a live MCP server. Scenarios run
// in parallel up to a worker limit; steps within one scenario are strictly
// sequential because later steps read variables captured by earlier ones.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mcp-qa/internal/assert"
	"mcp-qa/internal/client"
	"mcp-qa/internal/ir"
	"mcp-qa/internal/vars"
)

const (
	defaultStepTimeout = 10 * time.Second
	maxResponseBytes   = 64 << 10 // response text cap in results
)

// ToolCaller is the slice of the protocol client the runner needs. Tests
// substitute an in-process fake.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*client.Response, error)
	Close() error
}

// Connector dials the server one scenario targets.
type Connector func(ctx context.Context, endpoint string, opts client.Options) (ToolCaller, error)

// Runner executes scenarios. Construct with New and the With* options.
type Runner struct {
	connect Connector
	log     *slog.Logger

	serverURL string
	transport string
	headers   map[string]string
	parallel  int
	failFast  bool
}

func New() *Runner {
	return &Runner{
		connect: func(ctx context.Context, endpoint string, opts client.Options) (ToolCaller, error) {
			return client.Connect(ctx, endpoint, opts)
		},
		log:      slog.Default(),
		parallel: 1,
	}
}

// WithServer overrides every scenario's declared server URL.
func (r *Runner) WithServer(url string) *Runner { r.serverURL = url; return r }

func (r *Runner) WithTransport(t string) *Runner { r.transport = t; return r }

func (r *Runner) WithHeaders(h map[string]string) *Runner { r.headers = h; return r }

func (r *Runner) WithParallel(n int) *Runner {
	if n < 1 {
		n = 1
	}
	r.parallel = n
	return r
}

// WithFailFast stops scheduling scenarios after the first failure.
func (r *Runner) WithFailFast(b bool) *Runner { r.failFast = b; return r }

func (r *Runner) WithLogger(l *slog.Logger) *Runner { r.log = l; return r }

// WithConnector replaces the dialer; used by tests.
func (r *Runner) WithConnector(c Connector) *Runner { r.connect = c; return r }

// Run executes the scenarios and aggregates a report. The report is always
// returned; the process exit code is the reporter's concern.
func (r *Runner) Run(ctx context.Context, scenarios []*ir.Scenario) *RunReport {
	report := &RunReport{StartedAt: time.Now().UTC(), Passed: true}
	start := time.Now()

	// one connection per endpoint, shared by every scenario of the run
	pool := newCallerPool(r.connect)
	defer pool.closeAll()

	parallel := r.parallel
	if r.failFast {
		// fail-fast needs a deterministic stop point
		parallel = 1
	}

	if parallel == 1 {
		for _, sc := range scenarios {
			scRes := r.runScenario(ctx, pool, sc)
			report.Scenarios = append(report.Scenarios, scRes)
			if !scRes.Passed() {
				report.Passed = false
				if r.failFast {
					break
				}
			}
		}
		report.DurationMs = float64(time.Since(start).Milliseconds())
		return report
	}

	results := make([]ScenarioResult, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = r.runScenario(gctx, pool, sc)
			return nil
		})
	}
	_ = g.Wait() // workers only report results, never errors

	for _, scRes := range results {
		if !scRes.Passed() {
			report.Passed = false
		}
	}
	report.Scenarios = results
	report.DurationMs = float64(time.Since(start).Milliseconds())
	return report
}

// ---- connection pool ----

// callerPool hands out one connection per (endpoint, transport) pair. The
// client holds no per-scenario state, so concurrent scenarios share it; the
// pool is drained when the run ends.
type callerPool struct {
	dial Connector

	mu   sync.Mutex
	open map[string]ToolCaller
}

func newCallerPool(dial Connector) *callerPool {
	return &callerPool{dial: dial, open: map[string]ToolCaller{}}
}

func (p *callerPool) get(ctx context.Context, endpoint string, opts client.Options) (ToolCaller, error) {
	key := opts.Transport + " " + endpoint
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.open[key]; ok {
		return c, nil
	}
	c, err := p.dial(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	p.open[key] = c
	return c, nil
}

func (p *callerPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.open {
		c.Close()
	}
	p.open = map[string]ToolCaller{}
}

// ---- scenario execution ----

func (r *Runner) runScenario(ctx context.Context, pool *callerPool, sc *ir.Scenario) ScenarioResult {
	start := time.Now()
	scRes := ScenarioResult{Name: sc.Name, Source: sc.Source, Status: StatusPassed}

	endpoint := r.serverURL
	if endpoint == "" {
		endpoint = sc.Server.URL
	}
	if endpoint == "" {
		scRes.Status = StatusAborted
		scRes.Errors = append(scRes.Errors, "no server URL: set server.url in the scenario or pass --server")
		scRes.DurationMs = float64(time.Since(start).Milliseconds())
		return scRes
	}

	transport := r.transport
	if transport == "" {
		transport = sc.Server.Transport
	}
	caller, err := pool.get(ctx, endpoint, client.Options{Transport: transport, Headers: r.headers})
	if err != nil {
		scRes.Status = StatusFailed
		scRes.Errors = append(scRes.Errors, fmt.Sprintf("connect %s: %v", endpoint, err))
		scRes.DurationMs = float64(time.Since(start).Milliseconds())
		return scRes
	}

	run := &scenarioRun{
		runner:  r,
		caller:  caller,
		vctx:    vars.NewContext(),
		timeout: sc.Server.Timeout.Std(),
		log:     r.log.With("scenario", sc.Name),
	}
	run.vctx.Set("uuid", uuid.NewString())
	run.vctx.Set("now", time.Now().UTC().Format(time.RFC3339))

	failFast := r.failFast || sc.FailFast

	scRes.Setup = run.runPhase(ctx, sc.Setup, true)
	setupFailed := anyFailed(scRes.Setup)

	if setupFailed {
		// a broken precondition makes every main step meaningless
		scRes.Steps = skipAll(sc.Steps, "setup failed")
	} else {
		scRes.Steps = run.runSteps(ctx, sc.Steps, failFast)
	}

	// teardown runs even when the run context was cancelled
	tctx := context.WithoutCancel(ctx)
	scRes.Teardown = run.runPhase(tctx, sc.Teardown, false)
	scRes.TeardownRan = true

	if setupFailed || anyFailed(scRes.Steps) || anyFailed(scRes.Teardown) {
		scRes.Status = StatusFailed
	}
	scRes.DurationMs = float64(time.Since(start).Milliseconds())
	return scRes
}

type scenarioRun struct {
	runner  *Runner
	caller  ToolCaller
	vctx    *vars.Context
	timeout time.Duration // scenario-level default step timeout
	log     *slog.Logger
}

// runPhase executes setup or teardown. With haltOnFailure the remaining
// steps of the phase are skipped after the first failure.
func (s *scenarioRun) runPhase(ctx context.Context, steps []ir.Step, haltOnFailure bool) []StepResult {
	var out []StepResult
	halted := false
	for i, st := range steps {
		if halted {
			out = append(out, skipped(st, i, "previous step failed"))
			continue
		}
		res, fatal := s.runStep(ctx, st, i)
		out = append(out, res)
		if res.Status == StatusFailed && (haltOnFailure || fatal) {
			halted = true
		}
	}
	return out
}

func (s *scenarioRun) runSteps(ctx context.Context, steps []ir.Step, failFast bool) []StepResult {
	var out []StepResult
	halted := false
	for i, st := range steps {
		if halted {
			out = append(out, skipped(st, i, "fail-fast"))
			continue
		}
		res, fatal := s.runStep(ctx, st, i)
		out = append(out, res)
		if res.Status != StatusFailed {
			continue
		}
		// an unresolved variable poisons every later step, fail-fast or not
		if failFast || fatal {
			halted = true
		}
	}
	return out
}

// runStep executes one step. The second return is true when the failure
// makes the rest of the scenario unrunnable (unresolved variables).
func (s *scenarioRun) runStep(ctx context.Context, st ir.Step, idx int) (StepResult, bool) {
	res := StepResult{Name: stepName(st, idx), Tool: st.Tool, Status: StatusPassed}
	start := time.Now()
	defer func() { res.DurationMs = float64(time.Since(start).Milliseconds()) }()

	fail := func(cat Category, err error) {
		res.Status = StatusFailed
		res.Category = cat
		res.Errors = append(res.Errors, err.Error())
	}

	input, expect, err := s.resolve(st)
	if err != nil {
		var se *vars.SubstitutionError
		if errors.As(err, &se) {
			fail(CategorySubstitution, err)
			return res, true
		}
		fail(CategoryConfig, err)
		return res, false
	}

	if !sleep(ctx, st.DelayBefore.Std()) {
		fail(CategoryTimeout, ctx.Err())
		return res, false
	}

	resp, attempts, err := s.call(ctx, st, input)
	res.Attempts = attempts
	if err != nil {
		cat := CategoryTransport
		var te *client.TimeoutError
		if errors.As(err, &te) {
			cat = CategoryTimeout
		}
		fail(cat, err)
		return res, false
	}
	res.Response = truncate(resp.Text, maxResponseBytes)

	if !sleep(ctx, st.DelayAfter.Std()) {
		fail(CategoryTimeout, ctx.Err())
		return res, false
	}

	if err := assert.Evaluate(resp, expect); err != nil {
		fail(CategoryAssertion, err)
		return res, false
	}

	// captures run only after the expectation matched, against the same
	// response snapshot
	for _, name := range sortedKeys(st.Capture) {
		v, err := vars.Extract(resp.Value, st.Capture[name])
		if err != nil {
			fail(CategoryCapture, err)
			return res, false
		}
		s.vctx.Set(name, v)
	}

	s.log.Debug("step passed", "step", res.Name, "tool", st.Tool, "attempts", attempts)
	return res, false
}

// call invokes the tool with the step timeout, retrying transport and
// timeout failures per the step's retry policy. Assertion mismatches never
// reach this loop.
func (s *scenarioRun) call(ctx context.Context, st ir.Step, input map[string]any) (*client.Response, int, error) {
	timeout := st.Timeout.Std()
	if timeout <= 0 {
		timeout = s.timeout
	}
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	maxAttempts := 1
	var retryDelay time.Duration
	if st.Retry != nil && st.Retry.OnError {
		maxAttempts += st.Retry.Count
		retryDelay = st.Retry.Delay.Std()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := s.caller.CallTool(cctx, st.Tool, input)
		cancel()
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err
		if !client.IsTransient(err) || attempt == maxAttempts {
			return nil, attempt, err
		}
		s.log.Debug("retrying step", "tool", st.Tool, "attempt", attempt, "error", err)
		if !sleep(ctx, retryDelay) {
			return nil, attempt, err
		}
	}
	return nil, maxAttempts, lastErr
}

// resolve substitutes ${var} tokens in the step input and in literal-valued
// expectation fields before anything executes.
func (s *scenarioRun) resolve(st ir.Step) (map[string]any, ir.Expect, error) {
	e := st.Expect

	resolved, err := vars.Resolve(anyMap(st.Input), s.vctx)
	if err != nil {
		return nil, e, err
	}
	input, _ := resolved.(map[string]any)

	if e.Equals != nil {
		if e.Equals, err = vars.Resolve(e.Equals, s.vctx); err != nil {
			return nil, e, err
		}
	}
	if len(e.Contains) > 0 {
		v, err := vars.Resolve(anyMap(e.Contains), s.vctx)
		if err != nil {
			return nil, e, err
		}
		e.Contains, _ = v.(map[string]any)
	}
	if e.Error != nil {
		ee := *e.Error
		if ee.Message, err = vars.ResolveString(ee.Message, s.vctx); err != nil {
			return nil, e, err
		}
		if ee.MessageContains, err = vars.ResolveString(ee.MessageContains, s.vctx); err != nil {
			return nil, e, err
		}
		if ee.MessageMatches, err = vars.ResolveString(ee.MessageMatches, s.vctx); err != nil {
			return nil, e, err
		}
		e.Error = &ee
	}
	return input, e, nil
}

// ---- small helpers ----

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func stepName(st ir.Step, idx int) string {
	if st.Name != "" {
		return st.Name
	}
	return fmt.Sprintf("step %d (%s)", idx+1, st.Tool)
}

func skipped(st ir.Step, idx int, reason string) StepResult {
	return StepResult{Name: stepName(st, idx), Tool: st.Tool, Status: StatusSkipped, Errors: []string{reason}}
}

func skipAll(steps []ir.Step, reason string) []StepResult {
	out := make([]StepResult, len(steps))
	for i, st := range steps {
		out[i] = skipped(st, i, reason)
	}
	return out
}

func anyFailed(steps []StepResult) bool {
	for _, st := range steps {
		if st.Status == StatusFailed {
			return true
		}
	}
	return false
}

// sleep waits for d or until the context is done; returns false on cancel.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]..."
}
