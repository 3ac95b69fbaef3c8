package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

const defaultAPIURL = "https://api.github.com/"

var (
	// ErrNotFound is returned when GitHub answers 404.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when GitHub rejects the credentials.
	ErrUnauthorized = errors.New("authentication failed")
)

// IsAuthError reports whether err is a GitHub authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Options configures a Client. Either Token or Tokens must be set.
type Options struct {
	// APIURL is the REST endpoint; empty means api.github.com.
	APIURL string
	// Token is a static token used when no installation is involved.
	Token string
	// Tokens supplies installation tokens for GitHub App authentication.
	Tokens *TokenCache
	// HTTPClient is the base client under the oauth2 transport.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client provides access to the GitHub REST API.
type Client struct {
	apiURL     string
	token      string
	tokens     *TokenCache
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a new GitHub client.
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" && opts.Tokens == nil {
		return nil, fmt.Errorf("no GitHub credentials: set GITHUB_TOKEN or configure a GitHub App")
	}
	if _, err := parseBaseURL(opts.APIURL); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}
	return &Client{
		apiURL:     opts.APIURL,
		token:      opts.Token,
		tokens:     opts.Tokens,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

// rest returns a go-github client authenticated for the installation. A
// zero installationID selects the static token.
func (c *Client) rest(ctx context.Context, installationID int64) (*github.Client, error) {
	var token string
	switch {
	case installationID > 0 && c.tokens != nil:
		t, err := c.tokens.Token(ctx, installationID)
		if err != nil {
			return nil, fmt.Errorf("installation token: %w", err)
		}
		token = t
	case c.token != "":
		token = c.token
	default:
		return nil, fmt.Errorf("GitHub App authentication needs an installation id")
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))
	if err := setBaseURL(gh, c.apiURL); err != nil {
		return nil, err
	}
	return gh, nil
}

// invalidate drops a cached installation token after GitHub rejected it.
func (c *Client) invalidate(installationID int64, err error) {
	if c.tokens != nil && installationID > 0 && IsAuthError(err) {
		c.tokens.Invalidate(installationID)
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		raw = defaultAPIURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid GitHub API URL %q", raw)
	}
	return u, nil
}

func setBaseURL(gh *github.Client, raw string) error {
	u, err := parseBaseURL(raw)
	if err != nil {
		return err
	}
	gh.BaseURL = u
	return nil
}

// classify wraps a go-github error, mapping 404 and 401/403 onto the
// package sentinels.
func classify(err error, what string) error {
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch er.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %s", what, ErrUnauthorized, er.Message)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
