package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CredentialSource mints short-lived keys for the upstream realtime service.
type CredentialSource interface {
	EphemeralKey(ctx context.Context) (string, error)
}

// HTTPCredentialSource fetches an ephemeral key from a session endpoint
// returning { "client_secret": { "value": "..." } }. A response without
// client_secret.value is a hard failure.
type HTTPCredentialSource struct {
	URL    string
	APIKey string
	Client *http.Client
}

func NewHTTPCredentialSource(url, apiKey string) *HTTPCredentialSource {
	return &HTTPCredentialSource{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPCredentialSource) EphemeralKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch session credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	if payload.ClientSecret.Value == "" {
		return "", fmt.Errorf("session response missing client_secret.value")
	}
	return payload.ClientSecret.Value, nil
}
