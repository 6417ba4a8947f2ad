package api

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"opennow/client/internal/domain"
)

type sessionRequest struct {
	ServerAddr string      `json:"serverAddress"`
	RequestID  string      `json:"requestId"`
	App        appMetadata `json:"app"`
}

type appMetadata struct {
	AppName  string `json:"appName"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type sessionResponse struct {
	Result int                  `json:"result"`
	Msg    string               `json:"msg"`
	Data   domain.StreamSession `json:"data"`
}

// Client requests streaming sessions from the service API.
type Client struct {
	http *http.Client
}

// NewClient creates an API client.
func NewClient() *Client {
	return &Client{http: http.DefaultClient}
}

func generateRequestID() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	h := sha1.Sum(buf)
	return fmt.Sprintf("%x", h)[:32]
}

// FetchSession asks the service for signaling credentials, the media
// server address, and ICE servers.
func (c *Client) FetchSession(token, serverAddr string) (*domain.StreamSession, error) {
	req := sessionRequest{
		ServerAddr: serverAddr,
		RequestID:  generateRequestID(),
		App: appMetadata{
			AppName:  "opennow",
			Version:  "0.1.0",
			Platform: "linux",
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	sessionURL := fmt.Sprintf("https://%s/v2/session", serverAddr)
	httpReq, err := http.NewRequest("POST", sessionURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var sessionResp sessionResponse
	if err := json.Unmarshal(respBody, &sessionResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if sessionResp.Result != 0 {
		return nil, fmt.Errorf("API error (result=%d): %s", sessionResp.Result, sessionResp.Msg)
	}

	if sessionResp.Data.ServerIP == "" {
		return nil, fmt.Errorf("session response missing media server address")
	}

	return &sessionResp.Data, nil
}
