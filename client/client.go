package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
)

// API is a client for the conversation service's HTTP endpoints.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: chat streams stay open for the whole turn.
		HTTPClient: &http.Client{},
	}
}

type threadsResponse struct {
	Threads []string `json:"threads"`
}

// GetHistory fetches the committed conversation for a thread. Unknown
// threads come back as an empty list.
func (a *API) GetHistory(ctx context.Context, threadID string) ([]models.HistoryMessage, error) {
	endpoint := fmt.Sprintf("%s/history/%s", a.BaseURL, url.PathEscape(threadID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request failed: status %d", resp.StatusCode)
	}

	var messages []models.HistoryMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	if messages == nil {
		messages = []models.HistoryMessage{}
	}
	return messages, nil
}

// ListThreads fetches the IDs of conversations the service knows about.
func (a *API) ListThreads(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/threads", nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("threads request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("threads request failed: status %d", resp.StatusCode)
	}

	var body threadsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding threads: %w", err)
	}
	return body.Threads, nil
}

// StreamChat runs one turn against the service and invokes handle for every
// event on the stream, the end event included. Lines that are not well-formed
// events are skipped. If the stream terminates without an end event the turn
// failed and an error is returned; fragments already handled should be
// discarded by the caller.
func (a *API) StreamChat(ctx context.Context, threadID, message string, handle func(models.StreamEvent) error) error {
	endpoint := fmt.Sprintf("%s/chat?message=%s&thread_id=%s",
		a.BaseURL, url.QueryEscape(message), url.QueryEscape(threadID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat request failed: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var event models.StreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil || event.Type == "" {
			// Malformed event; skip rather than abort the turn.
			continue
		}

		if err := handle(event); err != nil {
			return err
		}
		if event.Type == models.EventEnd {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return fmt.Errorf("stream ended without end event")
}

// WaitReady polls the service until it answers or the deadline passes.
func (a *API) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := a.ListThreads(reqCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service not ready after %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}
