// Package github is a thin client for the two GitHub interactions the
// backend performs: finishing the OAuth code exchange and listing the
// authenticated user's repositories for project linking.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const apiBase = "https://api.github.com"

// Repo is the slice of the repository payload project linking needs.
type Repo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
}

// Client exchanges OAuth codes and talks to the REST API.
type Client struct {
	oauth *oauth2.Config
	http  *http.Client
}

// NewClient builds a client from the OAuth app credentials.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"repo", "read:user"},
		},
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// ExchangeCode finishes the OAuth flow, returning the access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange oauth code: %w", err)
	}
	return tok.AccessToken, nil
}

// UserRepos lists the repositories visible to the token's owner.
func (c *Client) UserRepos(ctx context.Context, token string) ([]Repo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		apiBase+"/user/repos?per_page=100&sort=updated", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list repos: unexpected status %d", resp.StatusCode)
	}

	var repos []Repo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("decode repos: %w", err)
	}
	return repos, nil
}
