package query

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/metrics"
	"github.com/tanagra-labs/querent/internal/vecmath"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type fakeGateway struct {
	mu         sync.Mutex
	texts      []string
	textFields []domain.VectorField
	vecByText  map[string][]float64
	err        error
	errByField map[domain.VectorField]error
	imageVec   []float64
	imageScope string
}

func (f *fakeGateway) EmbedText(_ context.Context, text string, field domain.VectorField) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errByField[field]; err != nil {
		return nil, err
	}
	f.texts = append(f.texts, text)
	f.textFields = append(f.textFields, field)
	if v, ok := f.vecByText[text]; ok {
		return v, nil
	}
	return []float64{1, 0}, nil
}

func (f *fakeGateway) EmbedImage(_ context.Context, _ []byte, scope string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageScope = scope
	return f.imageVec, nil
}

type fakeBackend struct {
	mu             sync.Mutex
	lexicalByField map[domain.VectorField][]domain.ScoredElement
	lexicalCalls   []string // queries, in call order
	vectorOnly     []domain.ScoredElement
	vectorOnlyVec  []float64
	images         []domain.ScoredImage
	groups         []domain.AggregatedGroup
	collapseFlag   bool
	collapseExc    []float64
	collapseField  domain.VectorField
	aggregateSize  int
	element        domain.Element
	elementErr     error
	err            error
}

func (f *fakeBackend) LexicalVector(
	_ context.Context, _ []float64, query, _, _ string, field domain.VectorField,
) ([]domain.ScoredElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lexicalCalls = append(f.lexicalCalls, query)
	return f.lexicalByField[field], nil
}

func (f *fakeBackend) VectorOnly(
	_ context.Context, vector []float64, _, _ string, _ domain.VectorField,
) ([]domain.ScoredElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectorOnlyVec = vector
	return f.vectorOnly, nil
}

func (f *fakeBackend) ImageVector(
	_ context.Context, _ []float64, _, _ string,
) ([]domain.ScoredImage, error) {
	return f.images, nil
}

func (f *fakeBackend) PositiveNegativeCollapse(
	_ context.Context, _, exclude []float64, _, _ string, field domain.VectorField, collapse bool, _ int,
) ([]domain.AggregatedGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collapseFlag = collapse
	f.collapseExc = exclude
	f.collapseField = field
	return f.groups, nil
}

func (f *fakeBackend) AggregatedByExternalID(
	_ context.Context, _, _ []float64, _, _, _ string, size int, _ bool,
) ([]domain.AggregatedGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregateSize = size
	return f.groups, f.err
}

func (f *fakeBackend) GetElementByID(_ context.Context, _ string) (domain.Element, error) {
	return f.element, f.elementErr
}

type fakeEnricher struct {
	fragment string
	exclude  map[string]bool // element id -> excluded
}

func (f *fakeEnricher) Enrich(_ context.Context, el domain.Element, _, _ string) (string, bool) {
	if f.exclude[el.ID] {
		return "", false
	}
	return f.fragment, true
}

type fakeSummarizer struct {
	mu        sync.Mutex
	summaries map[string]string // element id -> summary
	err       error
	calls     []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, text, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return "", f.err
	}
	if s, ok := f.summaries[text]; ok {
		return s, nil
	}
	return "summary of " + text, nil
}

func hit(id string, score float64) domain.ScoredElement {
	return domain.ScoredElement{
		Element: domain.Element{ID: id, Title: "t-" + id, Fulltext: "f-" + id},
		Score:   score,
	}
}

func validReq() domain.QueryRequest {
	return domain.QueryRequest{Query: "refunds", BusinessID: "b1", UserID: "u1"}
}

func newService(b Backend, g Gateway, e Enricher, s Summarizer) *Service {
	return New(b, g, e, s, vecmath.PrincipalComponent, nil, nil)
}

func TestSearchFiltersAndRanks(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("a", 2.0), hit("b", 1.4), hit("c", 1.0)},
		},
	}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{fragment: "live"}, nil)

	results, err := svc.Search(context.Background(), validReq())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	// c scores 1.0 < 0.65*2.0 and is dropped.
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[0].RelevanceScore != 100 {
		t.Errorf("first = %+v", results[0])
	}
	if results[1].ID != "b" || results[1].RelevanceScore != 70 {
		t.Errorf("second = %+v", results[1])
	}
	if results[0].FulltextLive != "live" {
		t.Errorf("fragment missing: %+v", results[0])
	}
}

func TestSearchMixedMergesPerIDBest(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard:  {hit("a", 1.2), hit("b", 2.0)},
			domain.FieldFineTuned: {hit("a", 1.9), hit("c", 1.5)},
		},
	}
	gw := &fakeGateway{}
	svc := newService(backend, gw, &fakeEnricher{}, nil)

	req := validReq()
	req.Type = "mixed"
	results, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "b" {
		t.Errorf("best = %s, want b", results[0].ID)
	}
	// a keeps its higher fine-tuned score: round(1.9/2.0*100) = 95.
	if results[1].ID != "a" || results[1].RelevanceScore != 95 {
		t.Errorf("a = %+v", results[1])
	}
	if len(gw.textFields) != 2 {
		t.Fatalf("embedded %d times, want 2", len(gw.textFields))
	}
}

func TestSearchEnrichmentExcludes(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("a", 2.0), hit("b", 1.9)},
		},
	}
	enr := &fakeEnricher{exclude: map[string]bool{"a": true}}
	svc := newService(backend, &fakeGateway{}, enr, nil)

	results, err := svc.Search(context.Background(), validReq())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchValidation(t *testing.T) {
	svc := newService(&fakeBackend{}, &fakeGateway{}, &fakeEnricher{}, nil)

	tests := []struct {
		name string
		req  domain.QueryRequest
	}{
		{"empty query", domain.QueryRequest{BusinessID: "b", UserID: "u"}},
		{"missing business", domain.QueryRequest{Query: "q", UserID: "u"}},
		{"missing user", domain.QueryRequest{Query: "q", BusinessID: "b"}},
		{"bad type", domain.QueryRequest{Query: "q", BusinessID: "b", UserID: "u", Type: "pca"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Search(context.Background(), tt.req); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestSearchBackendErrorPropagates(t *testing.T) {
	backend := &fakeBackend{err: domain.ErrBackendUnavailable}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, nil)

	_, err := svc.Search(context.Background(), validReq())
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("want ErrBackendUnavailable, got %v", err)
	}
}

func TestSearchCollapsed(t *testing.T) {
	backend := &fakeBackend{
		groups: []domain.AggregatedGroup{
			{ExternalID: "x1", Parent: domain.Element{ID: "p1", Title: "T1"}, Score: 2.0},
			{ExternalID: "x2", Parent: domain.Element{ID: "p2"}, Score: 1.5},
		},
	}
	gw := &fakeGateway{vecByText: map[string][]float64{
		"refunds": {1, 0},
		"fees":    {0, 1},
	}}
	enr := &fakeEnricher{exclude: map[string]bool{"p2": true}}
	svc := newService(backend, gw, enr, nil)

	req := validReq()
	req.QueryNegative = "fees"
	req.GroupByExternalID = true

	results, err := svc.SearchCollapsed(context.Background(), req)
	if err != nil {
		t.Fatalf("SearchCollapsed() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "p1" {
		t.Fatalf("results = %+v", results)
	}
	if !backend.collapseFlag {
		t.Error("collapse flag not forwarded")
	}
	if len(backend.collapseExc) != 2 || backend.collapseExc[1] != 1 {
		t.Errorf("exclude vector = %v", backend.collapseExc)
	}
}

func TestSearchCollapsedReturnsRankedResults(t *testing.T) {
	backend := &fakeBackend{
		groups: []domain.AggregatedGroup{
			{ExternalID: "x1", Parent: domain.Element{ID: "p1", Title: "T1", Fulltext: "F1"}, Score: 2.0},
			{ExternalID: "x2", Parent: domain.Element{ID: "p2", Title: "T2", Fulltext: "F2"}, Score: 1.0},
		},
	}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{fragment: "live"}, nil)

	req := validReq()
	req.GroupByExternalID = true

	results, err := svc.SearchCollapsed(context.Background(), req)
	if err != nil {
		t.Fatalf("SearchCollapsed() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Relevance normalizes against the best group score.
	if results[0].ID != "p1" || results[0].RelevanceScore != 100 {
		t.Errorf("first = %+v", results[0])
	}
	if results[1].ID != "p2" || results[1].RelevanceScore != 50 {
		t.Errorf("second = %+v", results[1])
	}
	if results[0].Title != "T1" || results[0].Fulltext != "F1" || results[0].FulltextLive != "live" {
		t.Errorf("representative not enriched: %+v", results[0])
	}
}

func TestSearchCollapsedUsesFineTunedField(t *testing.T) {
	backend := &fakeBackend{}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, nil)

	req := validReq()
	req.Type = "fine-tuned"
	req.GroupByExternalID = true

	if _, err := svc.SearchCollapsed(context.Background(), req); err != nil {
		t.Fatalf("SearchCollapsed() error = %v", err)
	}
	if backend.collapseField != domain.FieldFineTuned {
		t.Errorf("field = %v, want FieldFineTuned", backend.collapseField)
	}
}

func TestSearchMixedToleratesOneEmbeddingFailure(t *testing.T) {
	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {hit("a", 2.0)},
		},
	}
	gw := &fakeGateway{errByField: map[domain.VectorField]error{
		domain.FieldFineTuned: domain.ErrEmbeddingUnavailable,
	}}
	svc := newService(backend, gw, &fakeEnricher{}, nil)

	req := validReq()
	req.Type = "mixed"
	results, err := svc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchMixedFailsWhenEveryFieldFails(t *testing.T) {
	gw := &fakeGateway{err: domain.ErrEmbeddingUnavailable}
	svc := newService(&fakeBackend{}, gw, &fakeEnricher{}, nil)

	req := validReq()
	req.Type = "mixed"
	_, err := svc.Search(context.Background(), req)
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestDeepsenseInsufficientSamples(t *testing.T) {
	vecHit := hit("a", 2.0)
	vecHit.Element.FulltextVect = []float64{1, 0}

	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {vecHit, hit("b", 1.9)}, // only one with a vector
		},
	}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, nil)

	_, err := svc.Deepsense(context.Background(), validReq())
	if !errors.Is(err, domain.ErrInsufficientSamples) {
		t.Fatalf("want ErrInsufficientSamples, got %v", err)
	}
}

func TestDeepsenseRefinesWithPrincipalComponent(t *testing.T) {
	principalCalled := false
	principal := func(vectors [][]float64) ([]float64, error) {
		principalCalled = true
		if len(vectors) != 2 {
			t.Errorf("principal got %d samples, want 2", len(vectors))
		}
		return []float64{0, 1}, nil
	}

	h1 := hit("a", 2.0)
	h1.Element.FulltextVect = []float64{1, 0}
	h2 := hit("b", 1.8)
	h2.Element.FulltextVect = []float64{0.9, 0.1}

	backend := &fakeBackend{
		lexicalByField: map[domain.VectorField][]domain.ScoredElement{
			domain.FieldStandard: {h1, h2},
		},
		vectorOnly: []domain.ScoredElement{hit("c", 1.6), hit("d", 0.2)},
	}
	svc := New(backend, &fakeGateway{}, &fakeEnricher{}, nil, principal, nil, nil)

	results, err := svc.Deepsense(context.Background(), validReq())
	if err != nil {
		t.Fatalf("Deepsense() error = %v", err)
	}
	if !principalCalled {
		t.Fatal("principal component never computed")
	}
	if len(backend.vectorOnlyVec) != 2 || backend.vectorOnlyVec[1] != 1 {
		t.Errorf("refined query vector = %v", backend.vectorOnlyVec)
	}
	// d scores 0.2 < 0.15*1.6? 0.15*1.6 = 0.24, so d drops.
	if len(results) != 1 || results[0].ID != "c" {
		t.Fatalf("results = %+v", results)
	}
}

func TestAggregatePassesGroupsThrough(t *testing.T) {
	backend := &fakeBackend{
		groups: []domain.AggregatedGroup{{ExternalID: "x1", AvgScore: 1.4}},
	}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, nil)

	groups, err := svc.Aggregate(context.Background(), validReq())
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(groups) != 1 || groups[0].ExternalID != "x1" {
		t.Fatalf("groups = %+v", groups)
	}
	if backend.aggregateSize != 20 {
		t.Errorf("group shortlist size = %d, want 20", backend.aggregateSize)
	}
}

func TestSearchImage(t *testing.T) {
	backend := &fakeBackend{
		images: []domain.ScoredImage{
			{Image: domain.Image{ID: "i1", ImageURL: "u1"}, Score: 2.0},
			{Image: domain.Image{ID: "i2"}, Score: 1.2},
			{Image: domain.Image{ID: "i3"}, Score: 0.9}, // < 0.5*2.0
		},
	}
	gw := &fakeGateway{imageVec: []float64{1}}
	svc := newService(backend, gw, &fakeEnricher{}, nil)

	results, err := svc.SearchImage(context.Background(), []byte{0xff}, "catalog", "b1", "u1")
	if err != nil {
		t.Fatalf("SearchImage() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "i1" || results[0].RelevanceScore != 100 {
		t.Errorf("first = %+v", results[0])
	}
	if results[1].RelevanceScore != 60 {
		t.Errorf("second relevance = %d, want 60", results[1].RelevanceScore)
	}
	if gw.imageScope != "catalog" {
		t.Errorf("scope = %q", gw.imageScope)
	}
}

func TestSearchImageEmptyPayload(t *testing.T) {
	svc := newService(&fakeBackend{}, &fakeGateway{}, &fakeEnricher{}, nil)

	_, err := svc.SearchImage(context.Background(), nil, "", "b1", "u1")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestSearchImageRequiresIdentity(t *testing.T) {
	svc := newService(&fakeBackend{}, &fakeGateway{}, &fakeEnricher{}, nil)

	tests := []struct {
		name       string
		businessID string
		userID     string
	}{
		{"missing business", "", "u1"},
		{"missing user", "b1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SearchImage(context.Background(), []byte{0xff}, "", tt.businessID, tt.userID)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestGetElement(t *testing.T) {
	backend := &fakeBackend{element: domain.Element{ID: "e1", Title: "T"}}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{fragment: "live"}, nil)

	res, err := svc.GetElement(context.Background(), "e1", "b1", "u1")
	if err != nil {
		t.Fatalf("GetElement() error = %v", err)
	}
	if res.RelevanceScore != 100 || res.FulltextLive != "live" {
		t.Errorf("res = %+v", res)
	}
}

func TestGetElementNotFound(t *testing.T) {
	backend := &fakeBackend{elementErr: domain.ErrElementNotFound}
	svc := newService(backend, &fakeGateway{}, &fakeEnricher{}, nil)

	_, err := svc.GetElement(context.Background(), "nope", "b1", "u1")
	if !errors.Is(err, domain.ErrElementNotFound) {
		t.Fatalf("want ErrElementNotFound, got %v", err)
	}
}

func TestGetElementEnrichmentExclusionIsNotFound(t *testing.T) {
	backend := &fakeBackend{element: domain.Element{ID: "e1"}}
	enr := &fakeEnricher{exclude: map[string]bool{"e1": true}}
	svc := newService(backend, &fakeGateway{}, enr, nil)

	_, err := svc.GetElement(context.Background(), "e1", "b1", "u1")
	if !errors.Is(err, domain.ErrElementNotFound) {
		t.Fatalf("want ErrElementNotFound, got %v", err)
	}
}

func TestRelevanceNormalization(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		max   float64
		want  int
	}{
		{"full", 2.0, 2.0, 100},
		{"half", 1.0, 2.0, 50},
		{"zero max is degenerate", 0.42, 0, 0},
		{"negative max is degenerate", 0.5, -1, 0},
		{"rounds", 1.004, 2.0, 50},
		{"clamps above", 3.0, 2.0, 100},
		{"clamps below", -0.5, 2.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relevance(tt.score, tt.max); got != tt.want {
				t.Errorf("relevance(%v, %v) = %d, want %d", tt.score, tt.max, got, tt.want)
			}
		})
	}
}

func TestFilterFloorDegenerateMaxKeepsAll(t *testing.T) {
	hits := []domain.ScoredElement{hit("a", 0), hit("b", -0.2)}
	kept, max := filterFloor(hits, 0.65)
	if max != 0 {
		t.Errorf("max = %v, want 0", max)
	}
	if len(kept) != 2 {
		t.Fatalf("kept = %+v, want both hits", kept)
	}
}

func TestMergeBestDeduplicates(t *testing.T) {
	merged := mergeBest(
		[]domain.ScoredElement{hit("a", 1.0), hit("b", 2.0)},
		[]domain.ScoredElement{hit("a", 1.5)},
	)
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	if merged[0].Element.ID != "b" || merged[1].Score != 1.5 {
		t.Errorf("merged = %+v", merged)
	}
}
