// Package github builds authenticated go-github clients for the github.com
// source. Wrap the returned client with adapters/github to read repositories.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

const defaultAPIURL = "https://api.github.com"

// NewTokenClient returns a client authenticated with a personal access token,
// or an anonymous client when token is empty. baseURL="" targets api.github.com.
func NewTokenClient(token, baseURL string) (*gogithub.Client, error) {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	c := gogithub.NewClient(httpClient)
	if err := applyBaseURL(c, baseURL); err != nil {
		return nil, err
	}
	return c, nil
}

// NewAppClient returns a client authenticated as a GitHub App installation.
// privateKeyPath is the path to the app's PEM private key.
func NewAppClient(appID, installationID int64, privateKeyPath, baseURL string) (*gogithub.Client, error) {
	tr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("github app auth: %w", err)
	}
	if baseURL != "" {
		tr.BaseURL = strings.TrimRight(baseURL, "/")
	}

	c := gogithub.NewClient(&http.Client{Transport: tr})
	if err := applyBaseURL(c, baseURL); err != nil {
		return nil, err
	}
	return c, nil
}

func applyBaseURL(c *gogithub.Client, baseURL string) error {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || baseURL == defaultAPIURL {
		return nil
	}
	u, err := url.Parse(baseURL + "/")
	if err != nil {
		return fmt.Errorf("parse github base url %q: %w", baseURL, err)
	}
	c.BaseURL = u
	return nil
}
