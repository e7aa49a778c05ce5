package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	User  string `json:"user"`
	Error string `json:"error"`
}

// Login exchanges credentials for a token at the API at baseURL.
func Login(ctx context.Context, httpClient *http.Client, baseURL, username, password string) (string, error) {
	return authenticate(ctx, httpClient, strings.TrimRight(baseURL, "/")+"/api/login", username, password)
}

// Register creates an account at the API at baseURL and returns its token.
func Register(ctx context.Context, httpClient *http.Client, baseURL, username, password string) (string, error) {
	return authenticate(ctx, httpClient, strings.TrimRight(baseURL, "/")+"/api/register", username, password)
}

func authenticate(ctx context.Context, httpClient *http.Client, url, username, password string) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	body, err := json.Marshal(credentials{Username: username, Password: password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authenticate %s: %s: %s", username, resp.Status, out.Error)
	}
	return out.Token, nil
}
