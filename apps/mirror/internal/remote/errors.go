package remote

import "fmt"

// Operation names carried by FetchError.
const (
	OpFetchStructure = "fetch structure"
	OpFetchFile      = "fetch file"
)

// FetchError is returned by a Client when a tree or file request fails.
type FetchError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying transport or status error.
func (e *FetchError) Unwrap() error { return e.Err }

// StatusError is returned when the remote answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.StatusCode)
}

// UnsupportedSourceError is returned by Mux for a Source with no registered client.
type UnsupportedSourceError struct {
	Source Source
}

// Error implements the error interface.
func (e UnsupportedSourceError) Error() string {
	return fmt.Sprintf("no client registered for source %q", e.Source)
}
