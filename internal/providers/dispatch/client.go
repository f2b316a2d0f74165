package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"lifeline/internal/domain"
	"lifeline/internal/ports"
)

// Config controls the emergency dispatch backend client.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// Client talks to the emergency dispatch backend. It implements
// ports.TurnProcessor, ports.AudioUploader and ports.RecordFinalizer.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type turnRequestBody struct {
	SessionID       string                `json:"sessionId,omitempty"`
	UserUtterance   string                `json:"userUtterance"`
	TranscriptSoFar []domain.Turn         `json:"transcriptSoFar"`
	HospitalID      string                `json:"hospitalId,omitempty"`
	CallCenterType  domain.CallCenterType `json:"callCenterType"`
}

type turnResponseBody struct {
	SessionID   string                 `json:"sessionId"`
	AIReplyText string                 `json:"aiReplyText"`
	Extracted   domain.ExtractedFields `json:"extracted"`
	ShouldRoute bool                   `json:"shouldRoute"`
}

// Process advances the conversation by one turn.
func (c *Client) Process(ctx context.Context, req ports.TurnRequest) (ports.TurnResult, error) {
	body := turnRequestBody{
		SessionID:       req.SessionID,
		UserUtterance:   req.Utterance,
		TranscriptSoFar: req.Transcript,
		HospitalID:      req.HospitalID,
		CallCenterType:  req.CallCenterType,
	}

	var resp turnResponseBody
	if err := c.postJSON(ctx, "/api/emergency/turn", body, &resp); err != nil {
		return ports.TurnResult{}, err
	}

	return ports.TurnResult{
		SessionID:   resp.SessionID,
		Reply:       resp.AIReplyText,
		Extracted:   resp.Extracted,
		ShouldRoute: resp.ShouldRoute,
	}, nil
}

// Upload stores a sealed audio artifact and returns its reference.
func (c *Client) Upload(ctx context.Context, artifactID string, audio []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", artifactID+".pcm")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("sessionId", artifactID); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/emergency/audio", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("audio upload failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var result struct {
		AudioURL string `json:"audioUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.AudioURL, nil
}

// Finalize persists the finished call as an emergency record.
func (c *Client) Finalize(ctx context.Context, rec domain.EmergencyRecord) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/api/emergency/records", rec, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("finalize response missing record id")
	}
	return result.ID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dispatch API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
}
