package redfish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

const sessionsPath = "/redfish/v1/SessionService/Sessions"

// Session is an active token-authenticated Redfish session.
type Session struct {
	Token string
	URI   string
}

// CreateSession opens a session and returns the X-Auth-Token plus the
// session resource URI for later deletion.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	payload, err := json.Marshal(map[string]string{
		"UserName": c.username,
		"Password": c.password,
	})
	if err != nil {
		return nil, err
	}

	url := BuildRedfishURL(c.endpoint, sessionsPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, resp.Status, "create session")
	}

	token := resp.Header.Get("X-Auth-Token")
	if token == "" {
		return nil, fmt.Errorf("session created but no X-Auth-Token returned")
	}

	var body struct {
		ODataID string `json:"@odata.id"`
		ID      string `json:"Id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Debug().Err(err).Msg("Session body not decodable, falling back to Location header")
	}
	uri := body.ODataID
	if uri == "" {
		uri = resp.Header.Get("Location")
	}
	if uri == "" {
		uri = fmt.Sprintf("%s/%s", sessionsPath, body.ID)
	}

	return &Session{Token: token, URI: uri}, nil
}

// DeleteSession tears down a session created by CreateSession.
func (c *Client) DeleteSession(ctx context.Context, session *Session) error {
	url := BuildRedfishURL(c.endpoint, session.URI)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", session.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return NewHTTPError(resp.StatusCode, resp.Status, "delete session")
	}
	return nil
}
