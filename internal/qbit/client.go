// Package qbit adapts the qBittorrent Web API to seedkeeper's domain types.
package qbit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	qbittorrent "github.com/autobrr/go-qbittorrent"

	"github.com/starford/seedkeeper/internal/models"
)

// api is the subset of *qbittorrent.Client used here.
type api interface {
	LoginCtx(ctx context.Context) error
	GetAppVersionCtx(ctx context.Context) (string, error)
	GetTorrentsCtx(ctx context.Context, o qbittorrent.TorrentFilterOptions) ([]qbittorrent.Torrent, error)
	GetTorrentTrackersCtx(ctx context.Context, hash string) ([]qbittorrent.TorrentTracker, error)
	PauseCtx(ctx context.Context, hashes []string) error
	DeleteTorrentsCtx(ctx context.Context, hashes []string, deleteFiles bool) error
}

var _ api = (*qbittorrent.Client)(nil)

// Config holds the connection settings.
type Config struct {
	Host          string
	Username      string
	Password      string
	TLSSkipVerify bool
	Timeout       time.Duration
	LoginAttempts int
	LoginBackoff  time.Duration
	Mapping       Mapping
}

// Client talks to one qBittorrent instance. It logs in lazily and again
// after any failed call.
type Client struct {
	api      api
	cfg      Config
	logger   *slog.Logger
	mu       sync.Mutex
	loggedIn bool
}

// New creates a Client. No request is made until the first call.
func New(cfg Config, logger *slog.Logger) *Client {
	c := qbittorrent.NewClient(qbittorrent.Config{
		Host:          cfg.Host,
		Username:      cfg.Username,
		Password:      cfg.Password,
		TLSSkipVerify: cfg.TLSSkipVerify,
		Timeout:       int(cfg.Timeout.Seconds()),
	})
	return newWithAPI(c, cfg, logger)
}

func newWithAPI(a api, cfg Config, logger *slog.Logger) *Client {
	if cfg.LoginAttempts < 1 {
		cfg.LoginAttempts = 1
	}
	return &Client{api: a, cfg: cfg, logger: logger}
}

// Connect logs in, retrying up to LoginAttempts times with LoginBackoff
// between attempts.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	var err error
	for attempt := 1; attempt <= c.cfg.LoginAttempts; attempt++ {
		if err = c.api.LoginCtx(ctx); err == nil {
			c.loggedIn = true
			if v, verr := c.api.GetAppVersionCtx(ctx); verr == nil {
				c.logger.Info("qbit: connected", slog.String("host", c.cfg.Host), slog.String("version", v))
			}
			return nil
		}
		c.logger.Warn("qbit: login failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.LoginAttempts),
			slog.String("error", err.Error()))
		if attempt == c.cfg.LoginAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.LoginBackoff):
		}
	}
	return fmt.Errorf("qbit: login to %s: %w", c.cfg.Host, err)
}

// call runs fn after ensuring a session. A failed call drops the session so
// the next call logs in again.
func (c *Client) call(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	if err := c.loginLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := fn(); err != nil {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// Torrents lists every torrent with its content path mapped to the local
// filesystem.
func (c *Client) Torrents(ctx context.Context) ([]models.Torrent, error) {
	var raw []qbittorrent.Torrent
	err := c.call(ctx, func() error {
		var err error
		raw, err = c.api.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("qbit: list torrents: %w", err)
	}
	out := make([]models.Torrent, 0, len(raw))
	for _, t := range raw {
		out = append(out, convertTorrent(t, c.cfg.Mapping))
	}
	return out, nil
}

// Trackers lists the trackers of one torrent.
func (c *Client) Trackers(ctx context.Context, hash string) ([]models.Tracker, error) {
	var raw []qbittorrent.TorrentTracker
	err := c.call(ctx, func() error {
		var err error
		raw, err = c.api.GetTorrentTrackersCtx(ctx, hash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("qbit: list trackers of %s: %w", hash, err)
	}
	out := make([]models.Tracker, 0, len(raw))
	for _, tr := range raw {
		out = append(out, convertTracker(tr))
	}
	return out, nil
}

// Stop pauses a torrent.
func (c *Client) Stop(ctx context.Context, hash string) error {
	if err := c.call(ctx, func() error { return c.api.PauseCtx(ctx, []string{hash}) }); err != nil {
		return fmt.Errorf("qbit: stop %s: %w", hash, err)
	}
	return nil
}

// Delete removes a torrent, and its files when deleteFiles is set.
func (c *Client) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	if err := c.call(ctx, func() error { return c.api.DeleteTorrentsCtx(ctx, []string{hash}, deleteFiles) }); err != nil {
		return fmt.Errorf("qbit: delete %s: %w", hash, err)
	}
	return nil
}
