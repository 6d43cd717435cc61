package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the catalog API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>catalog - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "catalog", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "status": {"type":"integer"}, "message": {"type":"string"}, "kind": {"type":"string"}, "data": {}, "cause": {"type":"object"} } },
      "Title": { "type": "object", "properties": { "id": {"type":"string"}, "show_id": {"type":"string"}, "type": {"type":"string"}, "title": {"type":"string"}, "director": {"type":"string"}, "cast": {"type":"string"}, "country": {"type":"string"}, "date_added": {"type":"string","format":"date-time"}, "releaseYear": {"type":"number"}, "rating": {"type":"string"}, "duration": {"type":"string"}, "listed_in": {"type":"string"}, "description": {"type":"string"}, "__v": {"type":"integer"} } }
    }
  },
  "paths": {
    "/api/v1/netflix": {
      "get": { "summary": "List titles", "parameters": [ {"name":"page","in":"query","schema":{"type":"integer"}}, {"name":"per_page","in":"query","schema":{"type":"integer"}} ], "responses": { "200": { "description": "page of titles, X-Total-Count and Link headers" }, "204": { "description": "no titles on this page" } } },
      "post": { "summary": "Create a title", "security": [ {"bearer": []} ], "responses": { "201": { "description": "created, Location header set" }, "400": { "description": "validation failed" } } }
    },
    "/api/v1/netflix/{id}": {
      "get": { "summary": "Get a title", "responses": { "200": { "description": "title" }, "404": { "description": "not found" } } },
      "put": { "summary": "Replace a title", "security": [ {"bearer": []} ], "responses": { "200": { "description": "replaced" }, "304": { "description": "not modified" }, "409": { "description": "version conflict" } } },
      "patch": { "summary": "Update a title", "security": [ {"bearer": []} ], "responses": { "200": { "description": "updated" }, "304": { "description": "not modified" }, "409": { "description": "version conflict" } } },
      "delete": { "summary": "Delete a title, body carries __v", "security": [ {"bearer": []} ], "responses": { "204": { "description": "deleted" }, "400": { "description": "missing or extra properties" }, "409": { "description": "version conflict" } } }
    },
    "/api/v1/netflix/country": {
      "get": { "summary": "Distinct production countries", "responses": { "200": { "description": "sorted country names" } } }
    },
    "/api/v1/netflix/country/{country}": {
      "get": { "summary": "Media types produced by a country", "responses": { "200": { "description": "country breakdown" }, "204": { "description": "no titles" } } }
    },
    "/api/v1/netflix/rating/{country}": {
      "get": { "summary": "Ratings by media type for a country", "responses": { "200": { "description": "rating counts" }, "204": { "description": "no titles" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "exposition format" } } } }
  }
}`
