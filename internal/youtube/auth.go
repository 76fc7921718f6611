package youtube

import (
	"context"
	"errors"
	"fmt"

	"github.com/ak-content/shorts-optimizer/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var youtubeScopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/yt-analytics.readonly",
}

// ErrAuthNotConfigured is returned when a live API call is attempted
// without a usable auth mode.
var ErrAuthNotConfigured = errors.New("youtube auth mode is not configured")

// tokenSource returns the memoized oauth2.TokenSource, building it on
// first use. Construction is wrapped in a singleflight group so that the
// lazy initialization stays idempotent even if callers ever overlap.
func (c *Client) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	c.mu.Lock()
	ts := c.tokens
	c.mu.Unlock()
	if ts != nil {
		return ts, nil
	}

	v, err, _ := c.initGroup.Do("token-source", func() (any, error) {
		built, err := c.newTokenSource(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tokens = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(oauth2.TokenSource), nil
}

// newTokenSource builds a token source for the configured auth mode:
// OAuth refresh-token exchange or Application Default Credentials /
// service-account JSON. The underlying sources cache and refresh the
// short-lived access token for the lifetime of the client instance.
func (c *Client) newTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	yt := c.cfg.YouTube

	switch yt.AuthMode {
	case config.AuthModeOAuthRefresh:
		if yt.ClientID == "" || yt.ClientSecret == "" || yt.RefreshToken == "" {
			return nil, errors.New("oauth refresh mode requested but credentials are incomplete")
		}
		conf := &oauth2.Config{
			ClientID:     yt.ClientID,
			ClientSecret: yt.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       youtubeScopes,
		}
		return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: yt.RefreshToken}), nil

	case config.AuthModeADC:
		if yt.ServiceAccountJSON != "" {
			creds, err := google.CredentialsFromJSON(ctx, []byte(yt.ServiceAccountJSON), youtubeScopes...)
			if err != nil {
				return nil, fmt.Errorf("parsing service account credentials: %w", err)
			}
			return creds.TokenSource, nil
		}
		creds, err := google.FindDefaultCredentials(ctx, youtubeScopes...)
		if err != nil {
			return nil, fmt.Errorf("resolving application default credentials: %w", err)
		}
		return creds.TokenSource, nil

	default:
		return nil, ErrAuthNotConfigured
	}
}

// accessToken produces a bearer token for a live API call. Failure here
// is fatal for the calling fetch: there is no usable data source without
// a token.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	ts, err := c.tokenSource(ctx)
	if err != nil {
		return "", err
	}

	token, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("obtaining access token: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("credentials produced an empty access token")
	}
	return token.AccessToken, nil
}
