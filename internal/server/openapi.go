package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

const docsPage = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Fieldline API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>window.onload = () => SwaggerUIBundle({url: '%s', dom_id: '#swagger-ui'});</script>
  </body>
</html>`

func mountDocs(r chi.Router, api huma.API, basePath string) {
	specPath := path.Join("/", basePath, "openapi.json")
	page := fmt.Sprintf(docsPage, specPath)
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	})

	var (
		once sync.Once
		spec []byte
	)
	r.Get(specPath, func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			decorateSpec(oas, path.Join("/", basePath, "health"))
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(spec)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

// decorateSpec adds the shared error response and the two auth schemes to
// every operation. The health probe stays public.
func decorateSpec(oas *huma.OpenAPI, healthPath string) {
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.Schemas == nil {
		oas.Components.Schemas = huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Api-Key"}
	security := []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	oas.Security = security

	errResponse := &huma.Response{
		Description: "Error",
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")},
		},
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = errResponse
			if route == healthPath {
				op.Security = []map[string][]string{}
			} else {
				op.Security = security
			}
		}
	}
}
