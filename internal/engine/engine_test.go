package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/williampepple1/speedscraper/internal/extraction"
	"github.com/williampepple1/speedscraper/internal/page"
	"github.com/williampepple1/speedscraper/internal/site"
	"github.com/williampepple1/speedscraper/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- fakes --

type stubAdapter struct {
	name       string
	url        string
	trigger    string
	completion page.Predicate
	extract    func(ctx context.Context, pg page.Page, poller *page.Poller) (models.RawMetricBundle, error)
}

func (a stubAdapter) Name() string      { return a.name }
func (a stubAdapter) TargetURL() string { return a.url }
func (a stubAdapter) ReadyCondition() page.ReadyCondition {
	return page.ReadyCondition{page.DOMContentLoaded}
}
func (a stubAdapter) TriggerSelector() string    { return a.trigger }
func (a stubAdapter) Completion() page.Predicate { return a.completion }

func (a stubAdapter) Extract(ctx context.Context, pg page.Page, poller *page.Poller) (models.RawMetricBundle, error) {
	return a.extract(ctx, pg, poller)
}

func returning(b models.RawMetricBundle) func(context.Context, page.Page, *page.Poller) (models.RawMetricBundle, error) {
	return func(context.Context, page.Page, *page.Poller) (models.RawMetricBundle, error) {
		return b, nil
	}
}

func provider(name string, b models.RawMetricBundle) stubAdapter {
	return stubAdapter{
		name:       name,
		url:        "https://" + name + ".test",
		completion: page.Predicate(name + "Done"),
		extract:    returning(b),
	}
}

type fakeSession struct {
	mu     sync.Mutex
	calls  []string
	closes int

	navErr map[string]error
	// html is the DOM served to Document; empty means a blank page
	html string
	// eval answers a predicate script; nil means always true
	eval func(script string) (bool, error)
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) Navigate(_ context.Context, url string, _ page.ReadyCondition) error {
	s.record("navigate " + url)
	return s.navErr[url]
}

func (s *fakeSession) Click(_ context.Context, selector string) error {
	s.record("click " + selector)
	return nil
}

func (s *fakeSession) Evaluate(_ context.Context, script string, res interface{}) error {
	s.record("eval " + script)
	ok, err := true, error(nil)
	if s.eval != nil {
		ok, err = s.eval(script)
	}
	*(res.(*bool)) = ok
	return err
}

func (s *fakeSession) Document(context.Context) (*goquery.Document, error) {
	html := s.html
	if html == "" {
		html = "<html></html>"
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func opener(s *fakeSession) page.Opener {
	return func(context.Context) (page.Session, error) { return s, nil }
}

type transition struct {
	provider string
	state    State
}

func newEngine(s *fakeSession, adapters []site.Adapter, seen *[]transition) *Engine {
	return New(opener(s), adapters,
		WithPoller(page.NewPoller(time.Millisecond, page.NoDeadline)),
		WithObserver(func(p string, st State) { *seen = append(*seen, transition{p, st}) }),
	)
}

func bundle(ping, down, up, server string) models.RawMetricBundle {
	return models.RawMetricBundle{
		models.KeyPing:     ping,
		models.KeyDownload: down,
		models.KeyUpload:   up,
		models.KeyServer:   server,
	}
}

// -- tests --

func TestScenarioSingleProvider(t *testing.T) {
	s := &fakeSession{}
	var seen []transition
	e := newEngine(s, []site.Adapter{provider("ProviderX", bundle("10,2", "55,0", "9,3", "NodeA"))}, &seen)

	results, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "ProviderX", r.Provider)
	assert.Equal(t, models.Value(10.2), r.Ping)
	assert.Equal(t, models.Value(55.0), r.Download)
	assert.Equal(t, models.Value(9.3), r.Upload)
	assert.Equal(t, "NodeA", r.Server)
	assert.Equal(t, 1, s.closes)
}

func TestStatesRunInOrderOncePerProvider(t *testing.T) {
	withTrigger := provider("b", bundle("1", "2", "3", ""))
	withTrigger.trigger = "#start"

	s := &fakeSession{}
	var seen []transition
	e := newEngine(s, []site.Adapter{provider("a", bundle("1", "2", "3", "")), withTrigger}, &seen)

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []transition{
		{"a", Navigating}, {"a", AwaitingCompletion}, {"a", Extracting}, {"a", Done}, {"a", Aggregated},
		{"b", Navigating}, {"b", Triggering}, {"b", AwaitingCompletion}, {"b", Extracting}, {"b", Done}, {"b", Aggregated},
	}, seen)

	assert.Equal(t, []string{
		"navigate https://a.test", "eval !!(aDone)",
		"navigate https://b.test", "click #start", "eval !!(bDone)",
	}, s.calls)
}

func TestResultsFollowDeclarationOrder(t *testing.T) {
	names := []string{"first", "second", "third"}
	var adapters []site.Adapter
	for _, n := range names {
		adapters = append(adapters, provider(n, bundle("1", "1", "1", "")))
	}

	s := &fakeSession{}
	var seen []transition
	results, err := newEngine(s, adapters, &seen).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, results, len(names))
	for i, n := range names {
		assert.Equal(t, n, results[i].Provider)
		assert.Equal(t, "https://"+n+".test", results[i].URL)
	}
}

func TestParseFailureIsLocal(t *testing.T) {
	s := &fakeSession{}
	var seen []transition
	adapters := []site.Adapter{
		provider("broken", bundle("", "abc", "40,5", "")),
		provider("fine", bundle("8", "100", "20", "X")),
	}

	results, err := newEngine(s, adapters, &seen).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Ping.IsMissing())
	assert.True(t, results[0].Download.IsMissing())
	assert.Equal(t, models.Value(40.5), results[0].Upload)
	assert.Equal(t, models.UnknownServer, results[0].Server)
	assert.True(t, results[1].Complete())
}

func TestNavigationFailureAbortsRemaining(t *testing.T) {
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	s := &fakeSession{navErr: map[string]error{"https://b.test": boom}}
	var seen []transition
	adapters := []site.Adapter{
		provider("a", bundle("1", "1", "1", "")),
		provider("b", bundle("1", "1", "1", "")),
		provider("c", bundle("1", "1", "1", "")),
	}

	results, err := newEngine(s, adapters, &seen).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNavigation)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "b", stepErr.Provider)
	assert.Equal(t, Navigating, stepErr.State)

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Provider)
	assert.NotContains(t, s.calls, "navigate https://c.test")
	assert.Equal(t, 1, s.closes)
}

func TestCompletionRuntimeErrorKeepsEarlierResults(t *testing.T) {
	runtimeGone := errors.New("target closed")
	polls := 0
	s := &fakeSession{eval: func(script string) (bool, error) {
		if script != "!!(secondDone)" {
			return true, nil
		}
		polls++
		if polls < 4 {
			return false, nil
		}
		return false, runtimeGone
	}}
	var seen []transition
	adapters := []site.Adapter{
		provider("first", bundle("5", "50", "5", "")),
		provider("second", bundle("5", "50", "5", "")),
	}

	results, err := newEngine(s, adapters, &seen).Run(context.Background())
	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, runtimeGone)
	require.Len(t, results, 1)
	assert.Equal(t, "first", results[0].Provider)
	assert.Equal(t, 4, polls)
	assert.Equal(t, 1, s.closes)
}

func TestExtractErrorIsExtractionFailure(t *testing.T) {
	bad := provider("bad", nil)
	bad.extract = func(context.Context, page.Page, *page.Poller) (models.RawMetricBundle, error) {
		return nil, errors.New("element missing")
	}

	s := &fakeSession{}
	var seen []transition
	results, err := newEngine(s, []site.Adapter{bad}, &seen).Run(context.Background())

	assert.Empty(t, results)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, Extracting, stepErr.State)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, 1, s.closes)
}

func TestMissingResultCellAbortsRemaining(t *testing.T) {
	s := &fakeSession{html: `<table><tbody>
		<tr><td>1</td><td>x</td><td>y</td><td>Srv</td></tr>
	</tbody></table>`}
	var seen []transition
	adapters := []site.Adapter{site.NewMinhaConexao(), provider("later", bundle("1", "1", "1", ""))}

	results, err := newEngine(s, adapters, &seen).Run(context.Background())

	assert.Empty(t, results)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, extraction.ErrNotFound)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "minhaconexao", stepErr.Provider)
	assert.Equal(t, Extracting, stepErr.State)

	assert.NotContains(t, s.calls, "navigate https://later.test")
	for _, tr := range seen {
		assert.NotEqual(t, "later", tr.provider)
	}
	assert.Equal(t, 1, s.closes)
}

func TestSecondaryWaitStallsUntilCanceled(t *testing.T) {
	stalled := provider("details", nil)
	stalled.extract = func(ctx context.Context, pg page.Page, poller *page.Poller) (models.RawMetricBundle, error) {
		if err := pg.Click(ctx, "#more"); err != nil {
			return nil, err
		}
		if err := poller.Await(ctx, pg, page.Predicate("uploadDone")); err != nil {
			return nil, err
		}
		return bundle("1", "1", "1", ""), nil
	}

	s := &fakeSession{eval: func(script string) (bool, error) {
		return script != "!!(uploadDone)", nil
	}}
	var seen []transition

	const stall = 60 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), stall)
	defer cancel()

	start := time.Now()
	results, err := newEngine(s, []site.Adapter{stalled}, &seen).Run(ctx)

	assert.GreaterOrEqual(t, time.Since(start), stall, "run must block while the wait is unsatisfied")
	assert.Empty(t, results)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, page.ErrDeadline)
	assert.Equal(t, 1, s.closes)
}

func TestOpenFailure(t *testing.T) {
	openErr := errors.New("chrome not found")
	e := New(func(context.Context) (page.Session, error) { return nil, openErr }, site.Builtin())

	results, err := e.Run(context.Background())
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrSession)
	assert.ErrorIs(t, err, openErr)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestNoAdapters(t *testing.T) {
	s := &fakeSession{}
	results, err := New(opener(s), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, s.closes)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "navigating", Navigating.String())
	assert.Equal(t, "awaiting completion", AwaitingCompletion.String())
	assert.Equal(t, "aggregated", Aggregated.String())
	assert.Equal(t, "State(42)", State(42).String())
}
