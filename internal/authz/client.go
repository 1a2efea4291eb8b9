// Package authz delegates admin authorization to an external verification
// service. The core never stores users or sessions; it forwards the bearer
// token and trusts the verifier's subject and role claims.
package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the verifier rejects the token.
var ErrUnauthorized = errors.New("token rejected")

const RoleAdmin = "admin"

type Client struct {
	VerifyURL string
	Timeout   time.Duration

	HTTP *http.Client
}

// Identity is the verifier's claim set for an accepted token.
type Identity struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Verify posts the token to the verification endpoint. A 401/403 answer
// maps to ErrUnauthorized; transport faults and other statuses surface as
// plain errors.
func (c *Client) Verify(ctx context.Context, token string) (*Identity, error) {
	url := strings.TrimSpace(c.VerifyURL)
	if url == "" {
		return nil, errors.New("auth verify url is empty")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	body, _ := json.Marshal(map[string]any{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("auth verify http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var id Identity
	if err := json.Unmarshal(b, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
