package internal

import (
	"io"

	"github.com/starford/seedkeeper/internal/jobs"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
	source     jobs.Source
	logOutput  io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath names the file the configuration was loaded from. The
// server watches it and applies job changes without a restart.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithSource replaces the qBittorrent client as the torrent source.
func WithSource(src jobs.Source) Option {
	return func(a *application) {
		a.source = src
	}
}

// WithLogOutput redirects the JSON log stream (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
