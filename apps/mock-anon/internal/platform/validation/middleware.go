// Package validation checks inbound requests against the mock's OpenAPI
// description before they reach a handler.
package validation

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// Rejection is the 400 body written for a request that fails validation. It
// matches the Error schema in schemas/openapi.yaml.
type Rejection struct {
	Error     string `json:"error"`
	Parameter string `json:"parameter,omitempty"`
}

// Option configures the middleware.
type Option func(*validator)

// WithLogger logs every rejected request at warn level.
func WithLogger(l *slog.Logger) Option {
	return func(v *validator) { v.log = l }
}

type validator struct {
	router routers.Router
	log    *slog.Logger
}

// New builds a gin middleware that validates requests against spec. Requests
// whose route is not described in spec, such as the multi-segment file route,
// are passed through untouched.
func New(spec []byte, opts ...Option) (gin.HandlerFunc, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi router: %w", err)
	}

	v := &validator{router: router, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(v)
	}
	return v.handle, nil
}

func (v *validator) handle(c *gin.Context) {
	route, pathParams, err := v.router.FindRoute(c.Request)
	if err != nil {
		c.Next()
		return
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    c.Request,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
		rej := rejection(err)
		v.log.Warn("request rejected",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"operation", route.Operation.OperationID,
			"parameter", rej.Parameter,
			"error", rej.Error,
		)
		c.AbortWithStatusJSON(http.StatusBadRequest, rej)
		return
	}
	c.Next()
}

// rejection reduces a validation error to the failing parameter and a short reason.
func rejection(err error) Rejection {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return Rejection{Error: err.Error()}
	}

	rej := Rejection{Error: reqErr.Reason}
	if rej.Error == "" && reqErr.Err != nil {
		rej.Error = reqErr.Err.Error()
	}
	if rej.Error == "" {
		rej.Error = reqErr.Error()
	}
	if reqErr.Parameter != nil {
		rej.Parameter = reqErr.Parameter.Name
	}
	return rej
}
