package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocal_Deterministic(t *testing.T) {
	e := NewLocal()
	a, err := e.Embed(context.Background(), "the auth flow uses JWT refresh tokens")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	b, _ := e.Embed(context.Background(), "the auth flow uses JWT refresh tokens")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text must embed to the same vector")
	}
	if len(a) != e.Dims() {
		t.Errorf("len = %d, want %d", len(a), e.Dims())
	}
}

func TestLocal_IsNormalized(t *testing.T) {
	e := NewLocal()
	v, _ := e.Embed(context.Background(), "one two three")
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("squared norm = %v, want 1", norm)
	}
}

func TestLocal_RelatedTextsScoreHigher(t *testing.T) {
	e := NewLocal()
	ctx := context.Background()
	query, _ := e.Embed(ctx, "database migration errors")
	related, _ := e.Embed(ctx, "fixing errors in the database migration script")
	unrelated, _ := e.Embed(ctx, "weekend hiking trip photos")

	if cosine(query, related) <= cosine(query, unrelated) {
		t.Errorf("related = %v should beat unrelated = %v",
			cosine(query, related), cosine(query, unrelated))
	}
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" || req.Prompt != "hello" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	e := NewOllama(srv.URL, "")
	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if !reflect.DeepEqual(v, []float32{0.1, 0.2}) {
		t.Errorf("vector = %v", v)
	}
}

func TestOllama_SurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model not found`, http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewOllama(srv.URL, "").Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_ProviderSelection(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
		wantDims int
	}{
		{"", false, 256},
		{"local", false, 256},
		{"ollama", false, 768},
		{"openai", false, 1536},
		{"cohere", true, 0},
	}
	for _, tc := range tests {
		t.Run("provider "+tc.provider, func(t *testing.T) {
			e, err := New(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if e.Dims() != tc.wantDims {
				t.Errorf("Dims() = %d, want %d", e.Dims(), tc.wantDims)
			}
		})
	}
}
