package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/tanagra-labs/querent/internal/domain"
)

func collect(t *testing.T, ch <-chan domain.DeepResult) []domain.DeepResult {
	t.Helper()
	var out []domain.DeepResult
	timeout := time.After(5 * time.Second)
	for {
		select {
		case res, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, res)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestDeepSearchTwoLevels(t *testing.T) {
	// Level 1 for the query; level 2 searches run against each parent's
	// summary, which the fake gateway maps to a distinct vector.
	l1a := hit("a", 2.0)
	l1b := hit("b", 1.8)
	l2c := hit("c", 1.0)

	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {l1a, l1b},
		},
	}
	// Every search returns the level-1 hits plus c; dedup must keep c only
	// once and never re-emit a or b.
	backend.lexicalByField[domain.FieldStandard] = append(
		backend.lexicalByField[domain.FieldStandard], l2c,
	)

	gw := &fakeGateway{}
	sum := &fakeSummarizer{}
	svc := newService(backend, gw, &fakeEnricher{}, sum)

	ch, err := svc.DeepSearch(context.Background(), validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	results := collect(t, ch)

	byID := map[string]domain.DeepResult{}
	for _, r := range results {
		if _, dup := byID[r.ID]; dup {
			t.Fatalf("duplicate emission for %s", r.ID)
		}
		byID[r.ID] = r
	}

	// c scores 1.0 < 0.7*2.0 and is dropped from level 1, but level 2 has no
	// floor, so the first parent's expansion emits it as a child.
	if len(results) != 3 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	for _, id := range []string{"a", "b"} {
		r, ok := byID[id]
		if !ok {
			t.Fatalf("missing %s", id)
		}
		if r.ParentLevel != nil {
			t.Errorf("%s: parentLevel = %v, want nil", id, *r.ParentLevel)
		}
		if r.Summary == "" {
			t.Errorf("%s: empty summary", id)
		}
	}
	c, ok := byID["c"]
	if !ok {
		t.Fatal("missing c")
	}
	if c.ParentLevel == nil {
		t.Error("c: parentLevel = nil, want a parent id")
	}
}

func TestDeepSearchLevelTwoKeepsLowScoringHits(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("p1", 2.0)},
		},
	}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, &fakeSummarizer{})

	ch, err := svc.DeepSearch(context.Background(), validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	// Swap in the level-2 hit list: c2 scores well under 0.7x the maximum and
	// must still emit.
	backend.mu.Lock()
	backend.lexicalByField[domain.FieldStandard] = []domain.ScoredElement{
		hit("c1", 1.0), hit("c2", 0.5),
	}
	backend.mu.Unlock()

	results := collect(t, ch)
	ids := map[string]bool{}
	for _, r := range results {
		ids[r.ID] = true
	}
	if !ids["p1"] || !ids["c1"] || !ids["c2"] {
		t.Fatalf("results = %+v, want p1, c1 and c2", results)
	}
}

func TestDeepSearchLevelTwoEmitsChildren(t *testing.T) {
	l1 := hit("a", 2.0)

	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {l1, hit("child", 1.9)},
		},
	}
	gw := &fakeGateway{}
	sum := &fakeSummarizer{summaries: map[string]string{"f-a": "a condensed"}}
	svc := newService(backend, gw, &fakeEnricher{}, sum)

	ch, err := svc.DeepSearch(context.Background(), validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	results := collect(t, ch)

	// Both hits clear the 0.7 floor at level 1, so both emit as parents and
	// level 2 finds nothing new.
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}

	// The parent's summary, not the original query, must drive the level-2
	// vector.
	gw.mu.Lock()
	reEmbedded := false
	for _, text := range gw.texts {
		if text == "a condensed" {
			reEmbedded = true
		}
	}
	gw.mu.Unlock()
	if !reEmbedded {
		t.Errorf("level 2 never embedded the parent summary; embedded texts: %v", gw.texts)
	}

	// The lexical side of every search keeps the user's query text.
	backend.mu.Lock()
	defer backend.mu.Unlock()
	for _, q := range backend.lexicalCalls {
		if q != "refunds" {
			t.Errorf("lexical query = %q, want the original query text", q)
		}
	}
}

func TestDeepSearchChildCarriesParentID(t *testing.T) {
	parent := hit("p", 2.0)
	child := hit("child", 1.9)

	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {parent},
		},
	}
	gw := &fakeGateway{}
	sum := &fakeSummarizer{}
	svc := newService(backend, gw, &fakeEnricher{}, sum)

	// After the level-1 pass consumes the initial hit list, swap in the
	// child for the level-2 search.
	ch, err := svc.DeepSearch(context.Background(), validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	backend.mu.Lock()
	backend.lexicalByField[domain.FieldStandard] = []domain.ScoredElement{child}
	backend.mu.Unlock()

	results := collect(t, ch)
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}

	var got *domain.DeepResult
	for i := range results {
		if results[i].ID == "child" {
			got = &results[i]
		}
	}
	if got == nil {
		t.Fatal("child never emitted")
	}
	if got.ParentLevel == nil || *got.ParentLevel != "p" {
		t.Errorf("child parentLevel = %v, want p", got.ParentLevel)
	}
}

func TestDeepSearchDeleteSentinelDropsCandidate(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("a", 2.0), hit("b", 1.9)},
		},
	}
	sum := &fakeSummarizer{summaries: map[string]string{"f-a": "noise @@DELETE@@ noise"}}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, sum)

	ch, err := svc.DeepSearch(context.Background(), validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	for _, r := range collect(t, ch) {
		if r.ID == "a" {
			t.Fatalf("sentinel-marked candidate emitted: %+v", r)
		}
	}
}

func TestDeepSearchSummarizerFailureSkipsCandidateOnly(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("a", 2.0)},
		},
	}
	sum := &fakeSummarizer{err: domain.ErrSummarizerUnavailable}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, sum)

	ch, err := svc.DeepSearch(context.Background(), validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	if results := collect(t, ch); len(results) != 0 {
		t.Fatalf("results = %+v, want none", results)
	}
}

func TestDeepSearchValidationBeforeStream(t *testing.T) {
	svc := newService(&fakeBackend{}, &fakeGateway{}, &fakeEnricher{}, &fakeSummarizer{})

	_, err := svc.DeepSearch(context.Background(), domain.QueryRequest{Query: "q"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestDeepSearchEmbeddingFailureBeforeStream(t *testing.T) {
	gw := &fakeGateway{err: domain.ErrEmbeddingUnavailable}
	svc := newService(&fakeBackend{}, gw, &fakeEnricher{}, &fakeSummarizer{})

	_, err := svc.DeepSearch(context.Background(), validReq())
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestDeepSearchCancellationClosesStream(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("a", 2.0), hit("b", 1.9), hit("c", 1.8)},
		},
	}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, &fakeSummarizer{})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.DeepSearch(ctx, validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	cancel()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed promptly
			}
		case <-timeout:
			t.Fatal("stream not closed after cancellation")
		}
	}
}

func TestDeepSearchWithBoundedPool(t *testing.T) {
	pool, err := ants.NewPool(2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Release()

	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("a", 2.0), hit("b", 1.9), hit("c", 1.8)},
		},
	}
	svc := New(backend, &fakeGateway{}, &fakeEnricher{}, &fakeSummarizer{}, nil, pool, nil)

	ch, err := svc.DeepSearch(context.Background(), validReq())
	if err != nil {
		t.Fatalf("DeepSearch() error = %v", err)
	}
	results := collect(t, ch)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
}
