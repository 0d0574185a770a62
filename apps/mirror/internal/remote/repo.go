package remote

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Source identifies which hosting service a Repo lives on.
type Source string

const (
	// SourceAnon is the anonymized repository service (paths of the form /r/<name>).
	SourceAnon Source = "anon"
	// SourceGitHub is github.com.
	SourceGitHub Source = "github"
)

// ErrInvalidRepoURL is returned when an input URL does not name a repository.
var ErrInvalidRepoURL = errors.New("invalid repository url")

// Repo is a parsed repository reference. Owner is empty for SourceAnon.
type Repo struct {
	Source Source `json:"source"`
	Owner  string `json:"owner,omitempty"`
	Name   string `json:"name"`
}

// String returns Name, or Owner/Name when an owner is set.
func (r Repo) String() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// ParseRepoURL extracts a Repo from a repository URL.
//
// github.com URLs yield SourceGitHub with owner and name taken from the first
// two path segments. Every other host is treated as the anonymized service:
// the path must start with /r/ and the segment after it is the name. Anything
// after the name is ignored.
func ParseRepoURL(raw string) (Repo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Repo{}, fmt.Errorf("%w %q: %v", ErrInvalidRepoURL, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Repo{}, fmt.Errorf("%w %q: expected an absolute url", ErrInvalidRepoURL, raw)
	}

	if isGitHubHost(u.Hostname()) {
		return parseGitHubPath(raw, u.Path)
	}

	if !strings.HasPrefix(u.Path, "/r/") {
		return Repo{}, fmt.Errorf("%w %q: path must start with /r/", ErrInvalidRepoURL, raw)
	}
	name := strings.Split(u.Path, "/")[2]
	if err := checkName(name); err != nil {
		return Repo{}, fmt.Errorf("%w %q: %v", ErrInvalidRepoURL, raw, err)
	}
	return Repo{Source: SourceAnon, Name: name}, nil
}

func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" || host == "www.github.com"
}

func parseGitHubPath(raw, path string) (Repo, error) {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("%w %q: expected github.com/<owner>/<repo>", ErrInvalidRepoURL, raw)
	}
	name := strings.TrimSuffix(parts[1], ".git")
	for _, seg := range []string{parts[0], name} {
		if err := checkName(seg); err != nil {
			return Repo{}, fmt.Errorf("%w %q: %v", ErrInvalidRepoURL, raw, err)
		}
	}
	return Repo{Source: SourceGitHub, Owner: parts[0], Name: name}, nil
}

// checkName rejects names that cannot serve as both one request path segment
// and one local directory name.
func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("missing repository name")
	case name == "." || name == "..":
		return fmt.Errorf("repository name %q is a relative reference", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("repository name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("repository name %q contains NUL", name)
	}
	return nil
}
