package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v68/github"
)

const (
	// jwtBackdate absorbs clock drift between this host and GitHub.
	jwtBackdate = 60 * time.Second
	// jwtLifetime is the longest lifetime GitHub accepts for an app JWT.
	jwtLifetime = 10 * time.Minute
	// installationTokenLifetime is assumed when GitHub omits expires_at.
	installationTokenLifetime = time.Hour
)

// Token is an installation access token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// AppTokenMinter signs app JWTs and exchanges them for installation tokens.
type AppTokenMinter struct {
	appID      int64
	key        *rsa.PrivateKey
	apiURL     string
	httpClient *http.Client
	now        func() time.Time
}

// LoadPrivateKey reads a PEM encoded RSA private key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading GitHub App private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub App private key %s: %w", path, err)
	}
	return key, nil
}

// NewAppTokenMinter creates a minter for the given app. An empty apiURL
// means api.github.com; httpClient may be nil.
func NewAppTokenMinter(appID int64, key *rsa.PrivateKey, apiURL string, httpClient *http.Client) (*AppTokenMinter, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("GitHub App id must be positive, got %d", appID)
	}
	if key == nil {
		return nil, fmt.Errorf("GitHub App private key is required")
	}
	return &AppTokenMinter{
		appID:      appID,
		key:        key,
		apiURL:     apiURL,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

// JWT returns a freshly signed app JWT.
func (m *AppTokenMinter) JWT() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(m.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtLifetime - jwtBackdate)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("signing GitHub App JWT: %w", err)
	}
	return signed, nil
}

// Mint exchanges a new app JWT for an installation access token.
func (m *AppTokenMinter) Mint(ctx context.Context, installationID int64) (Token, error) {
	signed, err := m.JWT()
	if err != nil {
		return Token{}, err
	}
	gh := github.NewClient(m.httpClient).WithAuthToken(signed)
	if err := setBaseURL(gh, m.apiURL); err != nil {
		return Token{}, err
	}

	it, _, err := gh.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return Token{}, classify(err, fmt.Sprintf("creating token for installation %d", installationID))
	}
	tok := Token{Value: it.GetToken(), ExpiresAt: it.GetExpiresAt().Time}
	if tok.ExpiresAt.IsZero() {
		tok.ExpiresAt = m.now().Add(installationTokenLifetime)
	}
	return tok, nil
}
