// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes seedkeeper's jobs and strike ledgers over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/seedkeeper/internal/apperr"
	"github.com/starford/seedkeeper/internal/jobs"
	"github.com/starford/seedkeeper/internal/ledger"
)

// Ledgers resolves the ledger of a policy kind.
type Ledgers interface {
	Ledger(kind ledger.Kind) (ledger.Recorder, bool)
}

// LinkFinder inspects hard links on the data volume.
type LinkFinder interface {
	Links(ctx context.Context, path string) ([]string, error)
	HasHardlinkUnder(ctx context.Context, contentPath, protectedRoot string) (bool, error)
}

// Server wraps the MCP server with seedkeeper tools.
type Server struct {
	mcp       *server.MCPServer
	jobs      map[string]jobs.Job
	busy      map[string]*sync.Mutex
	ledgers   Ledgers
	links     LinkFinder
	mediaRoot string
}

// New creates a new MCP server with all tools registered. Jobs started
// through run_job execute synchronously with their configured action,
// and at most one pass of each job runs at a time.
func New(js []jobs.Job, ledgers Ledgers, links LinkFinder, mediaRoot string) *Server {
	s := &Server{
		jobs:      make(map[string]jobs.Job, len(js)),
		busy:      make(map[string]*sync.Mutex, len(js)),
		ledgers:   ledgers,
		links:     links,
		mediaRoot: mediaRoot,
	}
	for _, j := range js {
		s.jobs[j.Name()] = j
		s.busy[j.Name()] = &sync.Mutex{}
	}

	s.mcp = server.NewMCPServer(
		"Seedkeeper",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List the enabled retention jobs."),
	), s.listJobs)

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("Run one retention pass now and return its report. "+
			"The job acts with its configured action (test, stop or delete)."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Job name, e.g. delete_forgotten")),
	), s.runJob)

	s.mcp.AddTool(mcp.NewTool("get_strikes",
		mcp.WithDescription("List every entity that currently has strikes for a job."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Job name, e.g. delete_orphaned")),
	), s.getStrikes)

	s.mcp.AddTool(mcp.NewTool("reset_strikes",
		mcp.WithDescription("Clear the strike history of one entity."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Job name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Torrent hash or orphaned path")),
	), s.resetStrikes)

	s.mcp.AddTool(mcp.NewTool("check_hardlinks",
		mcp.WithDescription("Show every path sharing the file's inode and whether content is linked into the media library."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of a file or directory on the data volume")),
	), s.checkHardlinks)

	s.mcp.AddResource(
		mcp.NewResource("seedkeeper://policies", "Retention Policies",
			mcp.WithResourceDescription("How each job decides what to stop or delete."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPolicies,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return mcp.NewToolResultText("no jobs enabled"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) runJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	j, ok := s.jobs[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown job: %s", name)), nil
	}
	mu := s.busy[name]
	if !mu.TryLock() {
		return mcp.NewToolResultError(fmt.Errorf("%w: %s", apperr.ErrJobQueued, name).Error()), nil
	}
	defer mu.Unlock()

	report, err := j.Run(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", name, err)), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getStrikes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l, res := s.ledger(req)
	if res != nil {
		return res, nil
	}
	entries, err := l.Entries(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no strikes recorded"), nil
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) resetStrikes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l, res := s.ledger(req)
	if res != nil {
		return res, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := l.Reset(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("reset: %s", id)), nil
}

func (s *Server) checkHardlinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	linked, err := s.links.HasHardlinkUnder(ctx, path, s.mediaRoot)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "linked into %s: %v\n", s.mediaRoot, linked)
	// Inode listing only makes sense for a single file.
	if paths, err := s.links.Links(ctx, path); err == nil {
		sort.Strings(paths)
		for _, p := range paths {
			b.WriteString(p)
			b.WriteByte('\n')
		}
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (s *Server) readPolicies(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "seedkeeper://policies",
			MIMEType: "text/markdown",
			Text:     PolicyRules,
		},
	}, nil
}

// ledger resolves the kind argument. A non-nil result is the error to return.
func (s *Server) ledger(req mcp.CallToolRequest) (ledger.Recorder, *mcp.CallToolResult) {
	raw, err := req.RequireString("kind")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	kind, err := ledger.ParseKind(raw)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	l, ok := s.ledgers.Ledger(kind)
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("job not enabled: %s", kind))
	}
	return l, nil
}
