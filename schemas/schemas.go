// Package schemas embeds the OpenAPI description served by the mock remote.
package schemas

import _ "embed"

// OpenAPISpec is the raw openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
