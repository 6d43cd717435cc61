package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/internal/document"
	"github.com/nellyolofsson/wt2/internal/document/repository"
	"github.com/nellyolofsson/wt2/internal/document/service"
	"github.com/nellyolofsson/wt2/internal/store"
	"github.com/stretchr/testify/require"
)

var noteSchema = document.MustSchema("Note", []document.Field{
	{Name: "title", Type: document.String, Required: true},
	{Name: "body", Type: document.String},
}, document.WithOptimisticConcurrency(""))

func newRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	svc := service.New(repository.New(noteSchema, store.NewMemoryStore()))
	RegisterDocumentRoutes(g.Group("/api/notes"), New(svc, opts))
	return g
}

func do(g *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	g.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestDocumentHandler_CRUD(t *testing.T) {
	g := newRouter(Options{})

	// create
	w := do(g, http.MethodPost, "/api/notes", `{"title":"first","body":"hi"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "http://example.com/api/notes/"+id, w.Header().Get("Location"))
	require.Equal(t, 0.0, created["__v"])
	require.NotContains(t, created, "_id")

	// get
	w = do(g, http.MethodGet, "/api/notes/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hi", decode(t, w)["body"])

	// update
	w = do(g, http.MethodPatch, "/api/notes/"+id, `{"body":"changed","__v":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1.0, decode(t, w)["__v"])

	// same payload again: stale version
	w = do(g, http.MethodPatch, "/api/notes/"+id, `{"body":"again","__v":0}`)
	require.Equal(t, http.StatusConflict, w.Code)

	// no change
	w = do(g, http.MethodPatch, "/api/notes/"+id, `{"body":"changed","__v":1}`)
	require.Equal(t, http.StatusNotModified, w.Code)
	require.Empty(t, w.Body.String())

	// replace
	w = do(g, http.MethodPut, "/api/notes/"+id, `{"title":"second","body":null,"__v":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	replaced := decode(t, w)
	require.Equal(t, "second", replaced["title"])
	require.NotContains(t, replaced, "body")

	// delete needs the version
	w = do(g, http.MethodDelete, "/api/notes/"+id, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = do(g, http.MethodDelete, "/api/notes/"+id, `{"__v":2}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(g, http.MethodGet, "/api/notes/"+id, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_BadRequests(t *testing.T) {
	g := newRouter(Options{})

	cases := []struct {
		name, method, path, body string
		status                   int
		kind                     string
	}{
		{"missing field", http.MethodPost, "/api/notes", `{"body":"x"}`, http.StatusBadRequest, "insufficient_data"},
		{"extra field", http.MethodPost, "/api/notes", `{"title":"x","color":"red"}`, http.StatusBadRequest, "excess_data"},
		{"bad json", http.MethodPost, "/api/notes", `{"title":`, http.StatusBadRequest, "validation"},
		{"not an object", http.MethodPost, "/api/notes", `[1,2]`, http.StatusBadRequest, "validation"},
		{"malformed id", http.MethodGet, "/api/notes/nope", "", http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(g, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			require.Equal(t, float64(tc.status), body["status"])
			require.Equal(t, tc.kind, body["kind"])
			require.NotEmpty(t, body["message"])
		})
	}
}

func TestDocumentHandler_ListPagination(t *testing.T) {
	g := newRouter(Options{})

	w := do(g, http.MethodGet, "/api/notes", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "0", w.Header().Get("X-Total-Count"))

	for i := 0; i < 25; i++ {
		w = do(g, http.MethodPost, "/api/notes", fmt.Sprintf(`{"title":"n%d"}`, i))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w = do(g, http.MethodGet, "/api/notes?page=2&per_page=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 10)
	require.Equal(t, "25", w.Header().Get("X-Total-Count"))
	require.Equal(t, "2", w.Header().Get("X-Page"))
	require.Equal(t, "10", w.Header().Get("X-Per-Page"))
	require.Equal(t, "3", w.Header().Get("X-Total-Pages"))
	require.Equal(t,
		`<http://example.com/api/notes?page=3&per_page=10>; rel="next", `+
			`<http://example.com/api/notes?page=1&per_page=10>; rel="prev", `+
			`<http://example.com/api/notes?page=1&per_page=10>; rel="first", `+
			`<http://example.com/api/notes?page=3&per_page=10>; rel="last"`,
		w.Header().Get("Link"))

	w = do(g, http.MethodGet, "/api/notes?page=abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "1", w.Header().Get("X-Page"))
	require.Equal(t, "20", w.Header().Get("X-Per-Page"))
}

func TestDocumentHandler_Guards(t *testing.T) {
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	g := newRouter(Options{Guards: []gin.HandlerFunc{deny}})

	w := do(g, http.MethodPost, "/api/notes", `{"title":"x"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(g, http.MethodGet, "/api/notes", "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestRespondError_ProductionHidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	err := apperr.Repository("", fmt.Errorf("query: %w", errors.New("connection refused")))

	for _, production := range []bool{true, false} {
		g := gin.New()
		g.GET("/x", func(c *gin.Context) { RespondError(c, err, production) })
		w := do(g, http.MethodGet, "/x", "")
		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		require.Equal(t, "An error occurred while accessing the repository.", body["message"])
		if production {
			require.Len(t, body, 2)
			continue
		}
		require.Equal(t, "repository", body["kind"])
		cause := body["cause"].(map[string]any)
		require.Contains(t, cause["message"], "connection refused")
		require.NotNil(t, cause["cause"])
	}
}

type loopErr struct{ next error }

func (e *loopErr) Error() string { return "loop" }
func (e *loopErr) Unwrap() error { return e.next }

func TestDescribeCause_StopsOnCycles(t *testing.T) {
	a := &loopErr{}
	b := &loopErr{next: a}
	a.next = b

	c := describeCause(a, map[uintptr]bool{}, 0)
	require.NotNil(t, c.Cause)
	require.True(t, c.Cause.Cause.Circular)
	require.Nil(t, c.Cause.Cause.Cause)

	joined := errors.Join(errors.New("x"), errors.New("y"))
	c = describeCause(joined, map[uintptr]bool{}, 0)
	require.Len(t, c.Causes, 2)
}

type countingErr struct {
	next  error
	calls int
}

func (e *countingErr) Error() string { e.calls++; return "counted" }
func (e *countingErr) Unwrap() error { return e.next }

func TestDescribeCause_RepeatedLinkNotRendered(t *testing.T) {
	a := &countingErr{}
	a.next = a

	c := describeCause(apperr.Repository("outer", a), map[uintptr]bool{}, 0)
	require.Equal(t, "repository", c.Kind)
	require.Equal(t, "counted", c.Cause.Message)
	require.True(t, c.Cause.Cause.Circular)
	require.Empty(t, c.Cause.Cause.Message)
	// one call from the outer Error() and one for the rendered link
	require.Equal(t, 2, a.calls)
}
