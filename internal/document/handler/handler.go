package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/internal/document"
	"github.com/nellyolofsson/wt2/internal/document/repository"
	"github.com/nellyolofsson/wt2/internal/document/service"
)

// DocumentKey is the gin context key LoadDocument stores the document under.
const DocumentKey = "doc"

// Options configure the document routes.
type Options struct {
	// Production hides error causes and diagnostic data.
	Production bool
	// Guards run in front of every route that writes.
	Guards []gin.HandlerFunc
}

// Handler serves the CRUD routes of one document service.
type Handler struct {
	svc  service.Service
	opts Options
}

func New(svc service.Service, opts Options) *Handler {
	return &Handler{svc: svc, opts: opts}
}

// RegisterDocumentRoutes mounts list, create, get, replace, update and delete on rg.
func RegisterDocumentRoutes(rg *gin.RouterGroup, h *Handler) {
	write := func(hs ...gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, h.opts.Guards...), hs...)
	}
	rg.GET("", h.List)
	rg.POST("", write(h.Create)...)
	rg.GET("/:id", h.LoadDocument, h.Find)
	rg.PUT("/:id", write(h.LoadDocument, h.Replace)...)
	rg.PATCH("/:id", write(h.LoadDocument, h.Update)...)
	rg.DELETE("/:id", write(h.LoadDocument, h.Delete)...)
}

// Fail renders err with the handler's error settings.
func (h *Handler) Fail(c *gin.Context, err error) {
	RespondError(c, err, h.opts.Production)
}

// LoadDocument loads the document named by :id into the context.
func (h *Handler) LoadDocument(c *gin.Context) {
	d, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.Set(DocumentKey, d)
	c.Next()
}

func (h *Handler) List(c *gin.Context) {
	page, err := h.svc.Get(c.Request.Context(), service.GetParams{
		Page:    queryInt(c, "page"),
		PerPage: queryInt(c, "per_page"),
	})
	if err != nil {
		h.Fail(c, err)
		return
	}
	setPaginationHeaders(c, page.Pagination)
	if len(page.Data) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, page.Data)
}

func (h *Handler) Find(c *gin.Context) {
	c.JSON(http.StatusOK, loaded(c))
}

func (h *Handler) Create(c *gin.Context) {
	payload, err := bindPayload(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	d, err := h.svc.Insert(c.Request.Context(), payload)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("%s/%s", baseURL(c), d.ID.Hex()))
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) Replace(c *gin.Context) { h.updateOrReplace(c, true) }

func (h *Handler) Update(c *gin.Context) { h.updateOrReplace(c, false) }

func (h *Handler) updateOrReplace(c *gin.Context, replace bool) {
	payload, err := bindPayload(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	saved, err := h.svc.UpdateOrReplace(c.Request.Context(), loaded(c), payload, replace)
	if err != nil {
		h.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) Delete(c *gin.Context) {
	payload, err := bindPayload(c)
	if err != nil {
		h.Fail(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), loaded(c), payload); err != nil {
		h.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func loaded(c *gin.Context) *document.Document {
	return c.MustGet(DocumentKey).(*document.Document)
}

// bindPayload decodes a JSON object body. An empty body is an empty payload.
func bindPayload(c *gin.Context) (map[string]any, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, apperr.Validation(err)
	}
	payload := map[string]any{}
	if len(bytes.TrimSpace(body)) == 0 {
		return payload, nil
	}
	if err := binding.JSON.BindBody(body, &payload); err != nil {
		return nil, apperr.Validation(err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host + strings.TrimSuffix(c.Request.URL.Path, "/")
}

func setPaginationHeaders(c *gin.Context, p repository.Pagination) {
	c.Header("X-Total-Count", strconv.FormatInt(p.TotalCount, 10))
	c.Header("X-Page", strconv.FormatInt(p.Page, 10))
	c.Header("X-Per-Page", strconv.FormatInt(p.PerPage, 10))
	c.Header("X-Total-Pages", strconv.FormatInt(p.TotalPages, 10))

	base := baseURL(c)
	link := func(page int64, rel string) string {
		return fmt.Sprintf(`<%s?page=%d&per_page=%d>; rel="%s"`, base, page, p.PerPage, rel)
	}
	var links []string
	if p.Page < p.TotalPages {
		links = append(links, link(p.Page+1, "next"))
	}
	if p.Page > 1 {
		links = append(links, link(p.Page-1, "prev"))
	}
	last := max(p.TotalPages, 1)
	links = append(links, link(1, "first"), link(last, "last"))
	c.Header("Link", strings.Join(links, ", "))
}
