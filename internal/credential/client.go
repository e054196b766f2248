package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client fetches join grants from the training server's credential endpoint.
type Client struct {
	baseURL string
	userID  string
	client  *http.Client
}

func NewClient(baseURL, userID string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userID:  strings.TrimSpace(userID),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type credentialRequest struct {
	ScenarioID string `json:"scenario_id"`
	UserID     string `json:"user_id"`
}

// Fetch requests a grant for one scenario session.
func (c *Client) Fetch(ctx context.Context, scenarioID string) (Grant, error) {
	payload, err := json.Marshal(credentialRequest{ScenarioID: scenarioID, UserID: c.userID})
	if err != nil {
		return Grant{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/voice/credential", bytes.NewReader(payload))
	if err != nil {
		return Grant{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("fetch credential: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Grant{}, fmt.Errorf("credential endpoint status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var grant Grant
	if err := json.NewDecoder(res.Body).Decode(&grant); err != nil {
		return Grant{}, fmt.Errorf("decode credential: %w", err)
	}
	if grant.Token == "" || grant.URL == "" || grant.RoomName == "" {
		return Grant{}, fmt.Errorf("credential endpoint returned incomplete grant")
	}
	return grant, nil
}
