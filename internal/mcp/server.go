package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"datalab/internal/analysis"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the analysis tool suite over the MCP protocol.
type MCPServer struct {
	svc    *analysis.Service
	logger *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(svc *analysis.Service, logger *slog.Logger) *MCPServer {
	return &MCPServer{svc: svc, logger: logger}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := s.build()
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

// StreamableHTTPHandler returns an HTTP handler serving the same tool set,
// for mounting at /mcp when the HTTP transport is active.
func (s *MCPServer) StreamableHTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.build())
}

func (s *MCPServer) build() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"datalab",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	return mcpServer
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	// dataset_overview
	mcpServer.AddTool(mcp.NewTool("dataset_overview",
		mcp.WithDescription("Profile a dataset: schema, row/column counts, per-column statistics and a small sample. Path is relative to the workspace."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dataset path relative to the workspace (csv, tsv, txt, json, ndjson, parquet, xlsx)"),
		),
		mcp.WithNumber("sample_rows",
			mcp.Description("Number of sample rows to include, default 10"),
			mcp.Min(0),
		),
	), s.handleOverview)

	// dataset_quality_report
	mcpServer.AddTool(mcp.NewTool("dataset_quality_report",
		mcp.WithDescription("Report missing values, duplicate rows and near-constant/near-unique columns of a dataset."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dataset path relative to the workspace"),
		),
	), s.handleQuality)

	// dataset_correlation_report
	mcpServer.AddTool(mcp.NewTool("dataset_correlation_report",
		mcp.WithDescription("Pearson correlations between numeric columns. With a target column: all features ranked against it; without: the strongest pairs."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dataset path relative to the workspace"),
		),
		mcp.WithString("target",
			mcp.Description("Optional numeric target column to rank correlations against"),
		),
	), s.handleCorrelation)

	// automated_eda_report
	mcpServer.AddTool(mcp.NewTool("automated_eda_report",
		mcp.WithDescription("Full exploratory report: overview, quality and correlation sections in one call."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dataset path relative to the workspace"),
		),
		mcp.WithString("target",
			mcp.Description("Optional target column for the correlation section"),
		),
	), s.handleEDA)

	// automated_modeling_workflow
	mcpServer.AddTool(mcp.NewTool("automated_modeling_workflow",
		mcp.WithDescription("Train baseline models for a target column: task inference, preprocessing pipeline, linear and random-forest baselines with held-out metrics. Artifacts are saved to a session directory under analysis_outputs/."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Dataset path relative to the workspace"),
		),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Target column to predict"),
		),
		mcp.WithString("problem_type",
			mcp.Description("Force the task type instead of inferring it"),
			mcp.Enum("classification", "regression"),
		),
		mcp.WithNumber("test_size",
			mcp.Description("Held-out fraction, default 0.2"),
			mcp.Min(0),
			mcp.Max(1),
		),
		mcp.WithNumber("seed",
			mcp.Description("Random seed, default 42"),
		),
		mcp.WithNumber("max_rows",
			mcp.Description("Deterministically downsample to at most this many rows before training"),
			mcp.Min(0),
		),
		mcp.WithString("artifact_subdir",
			mcp.Description("Explicit workspace-relative session directory instead of a generated one"),
		),
		mcp.WithBoolean("save_models",
			mcp.Description("Also persist the fitted pipeline and models as artifacts"),
		),
	), s.handleModeling)

	// execute_code
	mcpServer.AddTool(mcp.NewTool("execute_code",
		mcp.WithDescription("Run a Python snippet with the workspace as working directory. Output is captured and truncated beyond the configured cap."),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Code to execute"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Timeout in seconds, default 30, clamped to the configured maximum"),
			mcp.Min(0),
		),
	), s.handleExecute)

	// list_files
	mcpServer.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List a workspace directory."),
		mcp.WithString("path",
			mcp.Description("Directory relative to the workspace, default the workspace root"),
		),
	), s.handleListFiles)

	// read_file
	mcpServer.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a workspace file."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the workspace"),
		),
		mcp.WithNumber("max_bytes",
			mcp.Description("Maximum bytes to return, default 65536"),
			mcp.Min(0),
		),
	), s.handleReadFile)

	// write_file
	mcpServer.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Write a workspace file, creating parent directories as needed."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the workspace"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("File content"),
		),
	), s.handleWriteFile)

	// analysis_list_runs
	mcpServer.AddTool(mcp.NewTool("analysis_list_runs",
		mcp.WithDescription("Browse the recorded history of analysis tool invocations, newest first."),
		mcp.WithString("tool",
			mcp.Description("Only show runs of this tool"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of runs to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListRuns)

	s.logger.Info("MCP tools registered", "count", 10)
}

func (s *MCPServer) handleOverview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	sampleRows := int(mcp.ParseFloat64(request, "sample_rows", 0))
	report, err := s.svc.Overview(ctx, path, sampleRows)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("dataset overview failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Render()), nil
}

func (s *MCPServer) handleQuality(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	report, err := s.svc.Quality(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("quality report failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Render()), nil
}

func (s *MCPServer) handleCorrelation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	target := mcp.ParseString(request, "target", "")
	report, err := s.svc.Correlation(ctx, path, target)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("correlation report failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Render()), nil
}

func (s *MCPServer) handleEDA(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	target := mcp.ParseString(request, "target", "")
	report, err := s.svc.EDAReport(ctx, path, target)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("eda report failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report), nil
}

func (s *MCPServer) handleModeling(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := analysis.ModelingRequest{
		Path:           mcp.ParseString(request, "path", ""),
		Target:         mcp.ParseString(request, "target", ""),
		TaskOverride:   mcp.ParseString(request, "problem_type", ""),
		TestSize:       mcp.ParseFloat64(request, "test_size", 0),
		Seed:           int64(mcp.ParseFloat64(request, "seed", 0)),
		MaxRows:        int(mcp.ParseFloat64(request, "max_rows", 0)),
		ArtifactSubdir: mcp.ParseString(request, "artifact_subdir", ""),
		SaveModels:     mcp.ParseBoolean(request, "save_models", false),
	}

	outcome, err := s.svc.Modeling(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("modeling workflow failed: %v", err)), nil
	}

	result := outcome.Report
	result += fmt.Sprintf("\n### Artifacts\nSession dir: %s\n", outcome.SessionDir)
	for _, a := range outcome.Artifacts {
		result += fmt.Sprintf("- %s\n", a)
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := mcp.ParseString(request, "code", "")
	if strings.TrimSpace(code) == "" {
		return mcp.NewToolResultError("code must not be empty"), nil
	}
	timeout := time.Duration(mcp.ParseFloat64(request, "timeout_seconds", 0) * float64(time.Second))

	res, err := s.svc.Execute(ctx, code, timeout)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execution failed: %v", err)), nil
	}

	result := fmt.Sprintf("Status: %s\nExit code: %d\nDuration: %s\n", res.Status, res.ExitCode, res.Duration.Round(time.Millisecond))
	if res.Stdout != "" {
		result += fmt.Sprintf("\n### Stdout\n%s\n", res.Stdout)
	}
	if res.Stderr != "" {
		result += fmt.Sprintf("\n### Stderr\n%s\n", res.Stderr)
	}
	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleListFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	entries, err := s.svc.ListFiles(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("(empty directory)"), nil
	}

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(&b, "%s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "%s (%d bytes)\n", e.Name, e.Size)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleReadFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	maxBytes := int(mcp.ParseFloat64(request, "max_bytes", 0))

	content, truncated, err := s.svc.ReadFile(path, maxBytes)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read file failed: %v", err)), nil
	}
	if truncated {
		content += "\n[content truncated]"
	}
	return mcp.NewToolResultText(content), nil
}

func (s *MCPServer) handleWriteFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(request, "path", "")
	content := mcp.ParseString(request, "content", "")

	if err := s.svc.WriteFile(path, content); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write file failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("wrote %d bytes to %s", len(content), path)), nil
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tool := mcp.ParseString(request, "tool", "")
	limit := int(mcp.ParseFloat64(request, "limit", 0))

	runs, err := s.svc.ListRuns(ctx, tool, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("no recorded runs"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d runs:\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(&b, "%s [%s] %s\n", r.ID, r.Status, r.Tool)
		if r.Dataset != "" {
			fmt.Fprintf(&b, "  dataset: %s\n", r.Dataset)
		}
		if r.Target != "" {
			fmt.Fprintf(&b, "  target: %s\n", r.Target)
		}
		if r.SessionDir != "" {
			fmt.Fprintf(&b, "  session dir: %s\n", r.SessionDir)
		}
		if r.DurationMS != nil {
			fmt.Fprintf(&b, "  duration: %dms\n", *r.DurationMS)
		}
		if r.Error != nil {
			fmt.Fprintf(&b, "  error: %s\n", *r.Error)
		}
		fmt.Fprintf(&b, "  started: %s\n\n", r.StartedAt.Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}
