package enrich

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"bookdex/internal/book"
	"bookdex/internal/ratelimit"
	"bookdex/internal/source"
)

// fakeSource is a scriptable source.Client for chain tests.
type fakeSource struct {
	name      string
	tier      int
	caps      source.Capability
	validator []string
	candidate *book.Candidate
	err       error
	calls     atomic.Int32
	secondTry *book.Candidate
	secondErr error
	hasSecond bool
}

func (f *fakeSource) Name() string                    { return f.name }
func (f *fakeSource) Tier() int                       { return f.tier }
func (f *fakeSource) Capabilities() source.Capability { return f.caps }
func (f *fakeSource) ValidatorFields() []string       { return f.validator }
func (f *fakeSource) Ping(ctx context.Context) error  { return nil }

func (f *fakeSource) Lookup(ctx context.Context, req book.Request) (*book.Candidate, error) {
	n := f.calls.Add(1)
	if n > 1 && f.hasSecond {
		return f.secondTry, f.secondErr
	}
	return f.candidate, f.err
}

func testGate() *ratelimit.Gate {
	return ratelimit.New(ratelimit.DefaultConfig())
}

func isbnReq(t *testing.T) book.Request {
	t.Helper()
	req, err := book.NewRequest(book.ISBNIdentifier("9780134190440"), book.AllowCached)
	assert.NoError(t, err)
	return req
}

func fullCandidate(src string) *book.Candidate {
	return &book.Candidate{
		Source:  src,
		Title:   strptr("The Go Programming Language"),
		Authors: []string{"Alan A. A. Donovan"},
		ISBN13:  strptr("9780134190440"),
	}
}

func TestRunSufficiencyShortCircuits(t *testing.T) {
	primary := &fakeSource{name: "primary", tier: 1, caps: source.ByISBN, candidate: fullCandidate("primary")}
	lower := &fakeSource{name: "lower", tier: 2, caps: source.ByISBN, candidate: fullCandidate("lower")}

	orch := NewOrchestrator([]source.Client{lower, primary}, testGate(), OrchestratorConfig{})
	results, tiers, err := orch.Run(context.Background(), isbnReq(t))

	assert.NoError(t, err)
	assert.Equal(t, 1, tiers)
	assert.Equal(t, 1, len(results))
	assert.Equal(t, "primary", results[0].Source)
	assert.Equal(t, int32(0), lower.calls.Load())
}

func TestRunFallsThroughOnNotFound(t *testing.T) {
	primary := &fakeSource{name: "primary", tier: 1, caps: source.ByISBN, err: book.ErrNotFound}
	lower := &fakeSource{name: "lower", tier: 2, caps: source.ByISBN, candidate: fullCandidate("lower")}

	orch := NewOrchestrator([]source.Client{primary, lower}, testGate(), OrchestratorConfig{})
	results, tiers, err := orch.Run(context.Background(), isbnReq(t))

	assert.NoError(t, err)
	assert.Equal(t, 2, tiers)
	assert.Equal(t, 1, len(results))
	assert.Equal(t, "lower", results[0].Source)
}

func TestRunAllNotFound(t *testing.T) {
	a := &fakeSource{name: "a", tier: 1, caps: source.ByISBN, err: book.ErrNotFound}
	b := &fakeSource{name: "b", tier: 2, caps: source.ByISBN, err: book.ErrNotFound}

	orch := NewOrchestrator([]source.Client{a, b}, testGate(), OrchestratorConfig{})
	_, _, err := orch.Run(context.Background(), isbnReq(t))

	ee, ok := book.AsEnrichmentError(err)
	assert.True(t, ok)
	assert.Equal(t, book.FailureExhausted, ee.Kind)
	assert.Equal(t, 2, ee.TiersAttempted)
}

func TestRunSkipsIncapableSources(t *testing.T) {
	isbnOnly := &fakeSource{name: "isbn-only", tier: 1, caps: source.ByISBN, candidate: fullCandidate("isbn-only")}
	both := &fakeSource{name: "both", tier: 2, caps: source.ByISBN | source.ByTitleAuthor, err: book.ErrNotFound}

	req, err := book.NewRequest(book.TitleAuthorIdentifier("Clean Code", "Robert C. Martin"), book.AllowCached)
	assert.NoError(t, err)

	orch := NewOrchestrator([]source.Client{isbnOnly, both}, testGate(), OrchestratorConfig{})
	_, tiers, runErr := orch.Run(context.Background(), req)

	assert.Equal(t, int32(0), isbnOnly.calls.Load())
	assert.Equal(t, int32(1), both.calls.Load())
	assert.Equal(t, 1, tiers)
	assert.Error(t, runErr)
}

func TestRunRetriesTransientOnce(t *testing.T) {
	flaky := &fakeSource{
		name: "flaky", tier: 1, caps: source.ByISBN,
		err:       book.ErrTransient,
		hasSecond: true,
		secondTry: fullCandidate("flaky"),
	}

	orch := NewOrchestrator([]source.Client{flaky}, testGate(),
		OrchestratorConfig{TransientBackoff: time.Millisecond})
	results, _, err := orch.Run(context.Background(), isbnReq(t))

	assert.NoError(t, err)
	assert.Equal(t, int32(2), flaky.calls.Load())
	assert.Equal(t, 1, len(results))
}

func TestRunFatalNotRetried(t *testing.T) {
	broken := &fakeSource{name: "broken", tier: 1, caps: source.ByISBN, err: book.ErrFatal}
	backup := &fakeSource{name: "backup", tier: 2, caps: source.ByISBN, candidate: fullCandidate("backup")}

	orch := NewOrchestrator([]source.Client{broken, backup}, testGate(),
		OrchestratorConfig{TransientBackoff: time.Millisecond})
	results, _, err := orch.Run(context.Background(), isbnReq(t))

	assert.NoError(t, err)
	assert.Equal(t, int32(1), broken.calls.Load())
	assert.Equal(t, "backup", results[0].Source)
}

func TestRunSkipsOpenCircuit(t *testing.T) {
	gate := testGate()
	for i := 0; i < ratelimit.DefaultConfig().FailureThreshold; i++ {
		gate.RecordFailure("down")
	}

	down := &fakeSource{name: "down", tier: 1, caps: source.ByISBN, candidate: fullCandidate("down")}
	backup := &fakeSource{name: "backup", tier: 2, caps: source.ByISBN, candidate: fullCandidate("backup")}

	orch := NewOrchestrator([]source.Client{down, backup}, gate, OrchestratorConfig{})
	results, _, err := orch.Run(context.Background(), isbnReq(t))

	assert.NoError(t, err)
	assert.Equal(t, int32(0), down.calls.Load())
	assert.Equal(t, "backup", results[0].Source)
}

func TestRunPartialDataReachesMerge(t *testing.T) {
	// Title but no ISBN or author: sufficiency never holds, but the
	// candidate still comes back for the merge stage to work with.
	thin := &fakeSource{name: "thin", tier: 1, caps: source.ByISBN,
		candidate: &book.Candidate{Title: strptr("Orphaned Title")}}

	orch := NewOrchestrator([]source.Client{thin}, testGate(), OrchestratorConfig{})
	results, tiers, err := orch.Run(context.Background(), isbnReq(t))

	assert.NoError(t, err)
	assert.Equal(t, 1, tiers)
	assert.Equal(t, 1, len(results))
}

// stallingSource blocks in Lookup until the request context is done.
type stallingSource struct {
	fakeSource
}

func (s *stallingSource) Lookup(ctx context.Context, req book.Request) (*book.Candidate, error) {
	s.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunDeadlineExpiryNotChargedToSource(t *testing.T) {
	slow := &stallingSource{fakeSource{name: "slow", tier: 1, caps: source.ByISBN}}
	gate := testGate()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	orch := NewOrchestrator([]source.Client{slow}, gate, OrchestratorConfig{})
	_, _, err := orch.Run(ctx, isbnReq(t))

	ee, ok := book.AsEnrichmentError(err)
	assert.True(t, ok)
	assert.Equal(t, book.FailureTimeout, ee.Kind)

	// Our own deadline is not the source's failure.
	st := gate.Snapshot("slow")
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, "closed", st.CircuitState)
}

func TestRunDeadlineYieldsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{name: "src", tier: 1, caps: source.ByISBN, candidate: fullCandidate("src")}
	orch := NewOrchestrator([]source.Client{src}, testGate(), OrchestratorConfig{})
	_, _, err := orch.Run(ctx, isbnReq(t))

	ee, ok := book.AsEnrichmentError(err)
	assert.True(t, ok)
	assert.Equal(t, book.FailureTimeout, ee.Kind)
}
