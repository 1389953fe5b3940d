package livedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tanagra-labs/querent/internal/domain"
)

type fakeScopes struct {
	scope          domain.Scope
	scopeErr       error
	businessCred   domain.AuthCredential
	businessErr    error
	userCred       domain.AuthCredential
	userErr        error
	lastBusinessID string
	lastUserID     string
}

func (f *fakeScopes) GetScope(_ context.Context, _ string) (domain.Scope, error) {
	return f.scope, f.scopeErr
}

func (f *fakeScopes) GetBusinessAuth(_ context.Context, businessID, _ string) (domain.AuthCredential, error) {
	f.lastBusinessID = businessID
	return f.businessCred, f.businessErr
}

func (f *fakeScopes) GetUserAuth(_ context.Context, userID, _ string) (domain.AuthCredential, error) {
	f.lastUserID = userID
	return f.userCred, f.userErr
}

func TestEnrichRendersFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 12.5, "stock": 3}`))
	}))
	defer srv.Close()

	e := NewEnricher(Config{Scopes: &fakeScopes{}})
	el := domain.Element{
		ID:               "e1",
		Scope:            "catalog",
		LiveDataURL:      srv.URL,
		LiveDataTemplate: "price: {{.price}}, stock: {{.stock}}",
	}

	fragment, keep := e.Enrich(context.Background(), el, "", "")
	if !keep {
		t.Fatal("element must be kept")
	}
	if fragment != "price: 12.5, stock: 3" {
		t.Errorf("fragment = %q", fragment)
	}
}

func TestEnrichFetchFailureIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewEnricher(Config{Scopes: &fakeScopes{}})
	el := domain.Element{ID: "e1", Scope: "s", LiveDataURL: srv.URL, LiveDataTemplate: "{{.x}}"}

	fragment, keep := e.Enrich(context.Background(), el, "", "")
	if !keep {
		t.Fatal("fetch failure must not exclude the element")
	}
	if fragment != "" {
		t.Errorf("fragment = %q, want empty", fragment)
	}
}

func TestEnrichValidationExcludes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stock": 0}`))
	}))
	defer srv.Close()

	e := NewEnricher(Config{Scopes: &fakeScopes{}})
	el := domain.Element{
		ID:                 "e1",
		Scope:              "s",
		LiveDataURL:        srv.URL,
		LiveDataValidation: "model.stock > 0",
		LiveDataTemplate:   "stock: {{.stock}}",
	}

	_, keep := e.Enrich(context.Background(), el, "", "")
	if keep {
		t.Fatal("failed validation must exclude the element")
	}
}

func TestEnrichValidationErrorExcludes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stock": 1}`))
	}))
	defer srv.Close()

	e := NewEnricher(Config{Scopes: &fakeScopes{}})
	el := domain.Element{
		ID:                 "e1",
		Scope:              "s",
		LiveDataURL:        srv.URL,
		LiveDataValidation: "model.nonexistent.deeply > 0",
	}

	_, keep := e.Enrich(context.Background(), el, "", "")
	if keep {
		t.Fatal("validation error must exclude the element")
	}
}

func TestEnrichRenderErrorOmitsFragmentOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stock": 1}`))
	}))
	defer srv.Close()

	e := NewEnricher(Config{Scopes: &fakeScopes{}})
	el := domain.Element{
		ID:               "e1",
		Scope:            "s",
		LiveDataURL:      srv.URL,
		LiveDataTemplate: "{{call .stock}}",
	}

	fragment, keep := e.Enrich(context.Background(), el, "", "")
	if !keep {
		t.Fatal("render error must not exclude the element")
	}
	if fragment != "" {
		t.Errorf("fragment = %q, want empty", fragment)
	}
}

func TestEnrichBusinessAuthToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	scopes := &fakeScopes{
		scope:        domain.Scope{ScopeID: "s", LiveDataAuthType: domain.AuthTypeBusiness},
		businessCred: domain.AuthCredential{APIKey: "biz-token"},
	}
	e := NewEnricher(Config{Scopes: scopes})
	el := domain.Element{ID: "e1", Scope: "s", LiveDataURL: srv.URL}

	_, keep := e.Enrich(context.Background(), el, "biz-42", "")
	if !keep {
		t.Fatal("element must be kept")
	}
	if gotAuth != "Bearer biz-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if scopes.lastBusinessID != "biz-42" {
		t.Errorf("business id = %q", scopes.lastBusinessID)
	}
}

func TestEnrichMissingCredentialFetchesUnauthenticated(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	scopes := &fakeScopes{
		scope:   domain.Scope{ScopeID: "s", LiveDataAuthType: domain.AuthTypeUser},
		userErr: domain.ErrCredentialNotFound,
	}
	e := NewEnricher(Config{Scopes: scopes})
	el := domain.Element{ID: "e1", Scope: "s", LiveDataURL: srv.URL}

	_, keep := e.Enrich(context.Background(), el, "", "user-1")
	if !keep {
		t.Fatal("missing credential must not exclude the element")
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want no header", gotAuth)
	}
}

func TestEnrichNoURLKeeps(t *testing.T) {
	e := NewEnricher(Config{})

	fragment, keep := e.Enrich(context.Background(), domain.Element{ID: "e1"}, "", "")
	if !keep || fragment != "" {
		t.Errorf("Enrich() = (%q, %v), want empty fragment and keep", fragment, keep)
	}
}

func TestValidateExpressions(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		json    string
		want    bool
		wantErr bool
	}{
		{"true", "model.ok", `{"ok": true}`, true, false},
		{"numeric comparison", "model.count >= 2", `{"count": 3}`, true, false},
		{"false", "model.count >= 2", `{"count": 1}`, false, false},
		{"array length", "len(model) > 0", `[1, 2]`, true, false},
		{"not bool", "model.count", `{"count": 1}`, false, true},
		{"bad syntax", "model.count >=", `{"count": 1}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseValue([]byte(tt.json))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := Validate(tt.expr, v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueAccessors(t *testing.T) {
	v, err := ParseValue([]byte(`{"name": "widget", "price": 9.99}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.Object(); !ok {
		t.Error("Object() must succeed for a JSON object")
	}
	if _, ok := v.Array(); ok {
		t.Error("Array() must fail for a JSON object")
	}
	price, ok := v.Field("price")
	if !ok || price != 9.99 {
		t.Errorf("Field(price) = %v, %v", price, ok)
	}
	if _, ok := v.Field("missing"); ok {
		t.Error("Field(missing) must report absence")
	}
}
