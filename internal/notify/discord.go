package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/seedkeeper/internal/logging"
)

const (
	colorInfo  = 0x697cff
	colorError = 0xff8080

	maxRateLimitRetries = 5
)

type discordEmbed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields"`
}

type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

// Discord posts events as embeds to a webhook URL.
type Discord struct {
	url    string
	client *http.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDiscord returns a Discord sink. An empty url disables delivery.
func NewDiscord(url string, logger *slog.Logger) *Discord {
	return &Discord{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Notify implements Notifier.
func (d *Discord) Notify(ctx context.Context, e Event) error {
	if d.url == "" {
		return nil
	}
	color := colorInfo
	if e.Level == Error {
		color = colorError
	}
	fields := e.Fields
	if fields == nil {
		fields = []Field{}
	}
	body, err := json.Marshal(discordMessage{Embeds: []discordEmbed{{Title: e.Title, Color: color, Fields: fields}}})
	if err != nil {
		return fmt.Errorf("notify: encode embed: %w", err)
	}

	for attempt := 0; ; attempt++ {
		retryAfter, err := d.post(ctx, body)
		if err != nil {
			return err
		}
		if retryAfter == 0 {
			return nil
		}
		if attempt+1 >= maxRateLimitRetries {
			return fmt.Errorf("notify: discord rate limited after %d attempts", attempt+1)
		}
		d.logger.Warn("notify: discord rate limited", slog.Duration("retry_after", retryAfter))
		if err := d.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// post sends one request. A non-zero duration means the caller should retry
// after waiting that long.
func (d *Discord) post(ctx context.Context, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK:
		logging.Trace(d.logger, "notify: discord webhook sent")
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		var rl struct {
			RetryAfter float64 `json:"retry_after"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&rl); err != nil || rl.RetryAfter <= 0 {
			rl.RetryAfter = 1
		}
		return time.Duration(rl.RetryAfter * float64(time.Second)), nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("notify: discord webhook: %d - %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
