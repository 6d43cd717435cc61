package media

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/internal/document/handler"
	"github.com/stretchr/testify/require"
)

func newCatalogRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()
	RegisterRoutes(g.Group("/api/v1/netflix"), svc, handler.Options{})
	return g
}

func get(g *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestCatalogRoutes_Aggregations(t *testing.T) {
	svc := seed(t,
		map[string]any{FieldCountry: "India, United States", FieldType: "Movie", FieldRating: "PG"},
		map[string]any{FieldCountry: "India", FieldType: "TV Show", FieldRating: "TV-14"},
	)
	g := newCatalogRouter(t, svc)

	w := get(g, http.MethodGet, "/api/v1/netflix/country/India")
	require.Equal(t, http.StatusOK, w.Code)
	var breakdown []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &breakdown))
	require.Len(t, breakdown, 1)
	require.Equal(t, "India", breakdown[0]["country"])
	require.Len(t, breakdown[0]["mediaTypes"], 2)

	w = get(g, http.MethodPost, "/api/v1/netflix/rating/"+url.PathEscape("United States"))
	require.Equal(t, http.StatusOK, w.Code)
	var ratings []RatingCount
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ratings))
	require.Equal(t, []RatingCount{{Type: "Movie", Rating: "PG", Count: 1}}, ratings)

	w = get(g, http.MethodGet, "/api/v1/netflix/country/Narnia")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = get(g, http.MethodGet, "/api/v1/netflix/country")
	require.Equal(t, http.StatusOK, w.Code)
	var countries []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &countries))
	require.Equal(t, []string{"India", "United States"}, countries)
}

func TestCatalogRoutes_EmptyCatalog(t *testing.T) {
	g := newCatalogRouter(t, seed(t))

	for _, path := range []string{"/api/v1/netflix", "/api/v1/netflix/country", "/api/v1/netflix/rating/India"} {
		w := get(g, http.MethodGet, path)
		require.Equal(t, http.StatusNoContent, w.Code, path)
	}
	w := get(g, http.MethodGet, "/api/v1/netflix/"+strings.Repeat("0", 24))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogRoutes_CreateTitle(t *testing.T) {
	g := newCatalogRouter(t, seed(t))

	body := `{"show_id":"s1","type":"Movie","title":"Dick Johnson Is Dead","country":"United States",
		"date_added":"September 25, 2021","releaseYear":2020,"rating":"PG-13","duration":"90 min"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/netflix", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, "2021-09-25T00:00:00Z", created["date_added"])
	require.Equal(t, 2020.0, created["releaseYear"])
	require.Equal(t, 0.0, created["__v"])
	require.Contains(t, w.Header().Get("Location"), "/api/v1/netflix/"+created["id"].(string))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/netflix", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
