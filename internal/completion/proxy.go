package completion

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

	"github.com/genfoo/backend/internal/config"
	"github.com/genfoo/backend/internal/models"
)

var (
	// ErrUpstreamUnavailable means no response was received at all.
	ErrUpstreamUnavailable = errors.New("completion: upstream unavailable")
	// ErrStreamInterrupted means the failure happened after bytes reached
	// the client; nothing more can be written to it.
	ErrStreamInterrupted = errors.New("completion: stream interrupted")
)

const maxErrorBody = 64 << 10

// UpstreamError is a non-2xx answer from the completion API. It is relayed
// to the caller unchanged.
type UpstreamError struct {
	Status      int
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion: upstream returned %d", e.Status)
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

// Proxy forwards chat transcripts to an OpenAI-compatible streaming
// endpoint and relays the event stream byte for byte.
type Proxy struct {
	baseURL  string
	apiKey   string
	siteURL  string
	siteName string
	timeout  time.Duration
	client   *http.Client
}

func NewProxy(cfg config.CompletionConfig, client *http.Client) *Proxy {
	if client == nil {
		// Bounded per request by the context deadline instead.
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Proxy{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		siteURL:  cfg.SiteURL,
		siteName: cfg.SiteName,
		timeout:  timeout,
		client:   client,
	}
}

// Stream sends messages to model and copies the response to w as it
// arrives. Errors other than ErrStreamInterrupted are returned before
// anything is written to w.
func (p *Proxy) Stream(ctx context.Context, model string, messages []models.ChatMessage, w http.ResponseWriter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.doRequest(ctx, p.buildRequest(model, messages))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &UpstreamError{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	n, err := copyFlushing(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
	}
	return n, nil
}

func (p *Proxy) buildRequest(model string, messages []models.ChatMessage) apiRequest {
	msgs := make([]apiMessage, len(messages))
	for i, m := range messages {
		msgs[i] = apiMessage{Role: m.Role, Content: m.Content}
	}
	return apiRequest{Model: model, Messages: msgs, Stream: true}
}

func (p *Proxy) doRequest(ctx context.Context, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("completion: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("completion: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.siteURL != "" {
		req.Header.Set("HTTP-Referer", p.siteURL)
	}
	if p.siteName != "" {
		req.Header.Set("X-Title", p.siteName)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return resp, nil
}

func copyFlushing(w http.ResponseWriter, r io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	var written int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
