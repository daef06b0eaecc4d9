package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the collaboration service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>gogotex-collab Swagger</title>
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

// Minimal OpenAPI document. The websocket protocol is described on /ws;
// OpenAPI has no first-class way to model its frames.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "gogotex-collab", "version": "v0.2.0" },
  "paths": {
    "/ws": {
      "get": {
        "summary": "Open a realtime collaboration session",
        "description": "Upgrade to websocket. Token via Authorization header or ?token=. Client events: join, leave, edit, ping. Server events: connected, connect_error, joined, left, document_updated, error, pong. Refused handshakes close with 4401.",
        "parameters": [ { "name": "token", "in": "query", "schema": { "type": "string" } } ],
        "responses": { "101": { "description": "switching protocols" } }
      }
    },
    "/api/rooms": { "get": { "summary": "List active rooms", "responses": { "200": { "description": "rooms with version and members" } } } },
    "/api/rooms/{id}": { "get": { "summary": "Live snapshot and members of a room", "responses": { "200": { "description": "room" }, "404": { "description": "no such room" } } } },
    "/api/presence": { "get": { "summary": "Online sessions", "responses": { "200": { "description": "sessions" } } } },
    "/api/documents": {
      "get": { "summary": "List documents", "responses": { "200": { "description": "documents" } } },
      "post": { "summary": "Create a document", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"content":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document, preferring the live room snapshot", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Update a document that is not being edited live", "responses": { "200": { "description": "updated" }, "409": { "description": "live" } } },
      "delete": { "summary": "Delete a document that is not being edited live", "responses": { "204": { "description": "deleted" }, "409": { "description": "live" } } }
    },
    "/api/documents/{id}/access": { "get": { "summary": "Access grants on a document", "responses": { "200": { "description": "grants" }, "403": { "description": "no read access" } } } },
    "/api/documents/{id}/access/{userId}": {
      "put": { "summary": "Grant read or edit access (owner only)", "responses": { "200": { "description": "grant" }, "400": { "description": "invalid role" }, "403": { "description": "not the owner" } } },
      "delete": { "summary": "Revoke access (owner only)", "responses": { "204": { "description": "revoked" }, "403": { "description": "not the owner" } } }
    },
    "/api/documents/{id}/versions/{version}": { "get": { "summary": "Archived snapshot of a flushed version", "responses": { "200": { "description": "document" }, "404": { "description": "not archived" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
