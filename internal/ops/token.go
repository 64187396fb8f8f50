package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TokenProvider exchanges credentials for a bearer token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ClientCredentials implements TokenProvider against the OPS access-token
// endpoint using the client-credentials grant.
type ClientCredentials struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   string `json:"expires_in"`
}

func (p *ClientCredentials) Token(ctx context.Context) (string, error) {
	if p.ClientID == "" || p.ClientSecret == "" {
		return "", fmt.Errorf("%w: missing client credentials", ErrAuth)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.AuthURL,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("%w: building token request: %v", ErrAuth, err)
	}
	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned HTTP %d", ErrAuth, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: parsing token response: %v", ErrAuth, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access_token", ErrAuth)
	}
	return tr.AccessToken, nil
}
