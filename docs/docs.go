// Package docs встраивает OpenAPI описание API для /swagger.
package docs

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.json
var openAPI []byte

func ServeOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(openAPI)
}
