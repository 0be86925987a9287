package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tendant/content-graph/pkg/contentgraph"
	"github.com/tendant/content-graph/pkg/contentgraph/config"
	"github.com/tendant/content-graph/pkg/contentgraph/scan"
)

const usage = `Content Graph Admin CLI

Reads the content store directly. Only database access is required.

USAGE:
  contentgraph-admin <command> [options]

COMMANDS:
  list      List contents with optional filtering
  stats     Aggregate contents by type, tag and layer
  check     Verify feature and image back-references

ENVIRONMENT VARIABLES:
  DATABASE_URL      "memory" or a postgres:// connection string (default: memory)
  DB_SCHEMA         PostgreSQL schema name

  Configuration can be loaded from a .env file in the current directory.

OPTIONS:
  --layer-id=<uuid>     Filter by layer
  --creator-id=<uuid>   Filter by creator
  --tag=<tag>           Filter by tag
  --limit=<n>           Maximum results (list only, default: 100)
  --offset=<n>          Pagination offset (list only, default: 0)
  --batch-size=<n>      Page size for stats and check (default: 100)
  --json                Output as JSON

EXAMPLES:
  contentgraph-admin list --tag=news --limit=10
  contentgraph-admin stats --layer-id=550e8400-e29b-41d4-a716-446655440000
  contentgraph-admin check --json
`

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	repo, closeRepo, err := cfg.BuildRepository(ctx)
	if err != nil {
		logger.Error("Failed to open repository", "err", err)
		os.Exit(1)
	}
	code := run(ctx, repo, logger, os.Args[1:], os.Stdout)
	closeRepo()
	os.Exit(code)
}

type options struct {
	filter    contentgraph.ContentFilter
	batchSize int
	json      bool
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, repo contentgraph.Repository, logger *slog.Logger, args []string, out io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(out, usage+"\n")
		return 1
	}

	command := args[0]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Fprint(out, usage+"\n")
		return 0
	}

	opts, err := parseOptions(args[1:])
	if err != nil {
		fmt.Fprintf(out, "%v\n\n%s\n", err, usage)
		return 1
	}

	switch command {
	case "list":
		err = handleList(ctx, repo, opts, out)
	case "stats":
		err = handleStats(ctx, repo, logger, opts, out)
	case "check":
		var clean bool
		clean, err = handleCheck(ctx, repo, logger, opts, out)
		if err == nil && !clean {
			return 2
		}
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n%s\n", command, usage)
		return 1
	}
	if err != nil {
		logger.Error("Command failed", "command", command, "err", err)
		return 1
	}
	return 0
}

func parseOptions(args []string) (options, error) {
	opts := options{
		filter:    contentgraph.ContentFilter{Limit: 100},
		batchSize: scan.DefaultBatchSize,
	}

	for _, arg := range args {
		key, value := parseFlag(arg)
		switch key {
		case "json":
			opts.json = true
		case "layer-id", "creator-id":
			id, err := uuid.Parse(value)
			if err != nil {
				return opts, fmt.Errorf("invalid --%s: %w", key, err)
			}
			if key == "layer-id" {
				opts.filter.LayerID = &id
			} else {
				opts.filter.CreatorID = &id
			}
		case "tag":
			opts.filter.Tag = contentgraph.NormalizeTag(value)
		case "limit", "offset", "batch-size":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("invalid --%s: %q", key, value)
			}
			switch key {
			case "limit":
				opts.filter.Limit = n
			case "offset":
				opts.filter.Offset = n
			default:
				opts.batchSize = n
			}
		default:
			return opts, fmt.Errorf("unknown option: %s", arg)
		}
	}
	return opts, nil
}

func parseFlag(arg string) (string, string) {
	if !strings.HasPrefix(arg, "--") {
		return arg, ""
	}
	key, value, found := strings.Cut(arg[2:], "=")
	if !found {
		return key, "true"
	}
	return key, value
}

func handleList(ctx context.Context, repo contentgraph.Repository, opts options, out io.Writer) error {
	contents, err := repo.ListContent(ctx, opts.filter)
	if err != nil {
		return fmt.Errorf("failed to list contents: %w", err)
	}

	if opts.json {
		return writeJSON(out, contents)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTYPE\tTITLE\tLAYER\tBLOCKS\tFEATURES\tCREATED\n")
	for _, c := range contents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			c.ID,
			c.Type,
			truncate(c.Title, 30),
			shortID(c.LayerID),
			len(c.Blocks),
			len(c.Features),
			c.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d", len(contents))
	if opts.filter.Limit > 0 && len(contents) == opts.filter.Limit {
		fmt.Fprintf(out, " (may have more, use --offset=%d to continue)", opts.filter.Offset+opts.filter.Limit)
	}
	fmt.Fprintln(out)
	return nil
}

// Statistics aggregates the contents visited by a scan.
type Statistics struct {
	TotalCount    int64                              `json:"total_count"`
	ByType        map[contentgraph.ContentType]int64 `json:"by_type"`
	ByTag         map[string]int64                   `json:"by_tag"`
	ByLayer       map[uuid.UUID]int64                `json:"by_layer"`
	ImageBlocks   int64                              `json:"image_blocks"`
	FeatureEdges  int64                              `json:"feature_edges"`
	OldestContent *time.Time                         `json:"oldest_content,omitempty"`
	NewestContent *time.Time                         `json:"newest_content,omitempty"`
}

func (s *Statistics) add(c *contentgraph.Content) {
	s.TotalCount++
	s.ByType[c.Type]++
	s.ByLayer[c.LayerID]++
	for _, tag := range c.Tags {
		s.ByTag[tag]++
	}
	s.ImageBlocks += int64(len(contentgraph.ImageIDs(c.Blocks)))
	s.FeatureEdges += int64(len(c.Features))

	created := c.CreatedAt
	if s.OldestContent == nil || created.Before(*s.OldestContent) {
		s.OldestContent = &created
	}
	if s.NewestContent == nil || created.After(*s.NewestContent) {
		s.NewestContent = &created
	}
}

func handleStats(ctx context.Context, repo contentgraph.Repository, logger *slog.Logger, opts options, out io.Writer) error {
	stats := &Statistics{
		ByType:  map[contentgraph.ContentType]int64{},
		ByTag:   map[string]int64{},
		ByLayer: map[uuid.UUID]int64{},
	}

	_, err := scan.New(repo, logger).Scan(ctx, scan.ScanOptions{
		Filter:    opts.filter,
		BatchSize: opts.batchSize,
		Processor: scan.ProcessorFunc(func(_ context.Context, c *contentgraph.Content) error {
			stats.add(c)
			return nil
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to scan contents: %w", err)
	}

	if opts.json {
		return writeJSON(out, stats)
	}

	fmt.Fprintln(out, "=== Content Statistics ===")
	fmt.Fprintf(out, "\nTotal Count: %d\n", stats.TotalCount)
	fmt.Fprintf(out, "Image Blocks: %d\n", stats.ImageBlocks)
	fmt.Fprintf(out, "Feature Edges: %d\n", stats.FeatureEdges)

	if len(stats.ByType) > 0 {
		fmt.Fprintln(out, "\nBy Type:")
		for _, t := range slices.Sorted(maps.Keys(stats.ByType)) {
			fmt.Fprintf(out, "  %-15s: %d\n", t, stats.ByType[t])
		}
	}
	if len(stats.ByTag) > 0 {
		fmt.Fprintln(out, "\nBy Tag:")
		for _, tag := range slices.Sorted(maps.Keys(stats.ByTag)) {
			fmt.Fprintf(out, "  %-15s: %d\n", truncate(tag, 15), stats.ByTag[tag])
		}
	}
	if len(stats.ByLayer) > 0 {
		fmt.Fprintln(out, "\nBy Layer:")
		for layer, count := range stats.ByLayer {
			fmt.Fprintf(out, "  %s: %d\n", shortID(layer), count)
		}
	}
	if stats.OldestContent != nil && stats.NewestContent != nil {
		fmt.Fprintln(out, "\nTime Range:")
		fmt.Fprintf(out, "  Oldest: %s\n", stats.OldestContent.Format(time.RFC3339))
		fmt.Fprintf(out, "  Newest: %s\n", stats.NewestContent.Format(time.RFC3339))
	}
	return nil
}

type checkReport struct {
	Scanned  int64          `json:"scanned"`
	Failed   []uuid.UUID    `json:"failed"`
	Problems []scan.Problem `json:"problems"`
}

// handleCheck reports whether the scanned part of the graph is consistent.
func handleCheck(ctx context.Context, repo contentgraph.Repository, logger *slog.Logger, opts options, out io.Writer) (bool, error) {
	checker := scan.NewIntegrityChecker(repo)
	result, err := scan.New(repo, logger).Scan(ctx, scan.ScanOptions{
		Filter:    opts.filter,
		BatchSize: opts.batchSize,
		Processor: checker,
	})
	if err != nil {
		return false, fmt.Errorf("failed to scan contents: %w", err)
	}

	report := checkReport{
		Scanned:  result.TotalFound,
		Failed:   result.FailedIDs,
		Problems: checker.Problems(),
	}
	clean := len(report.Failed) == 0

	if opts.json {
		return clean, writeJSON(out, report)
	}

	if len(report.Problems) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "CONTENT\tKIND\tREF\tDETAIL\n")
		for _, p := range report.Problems {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ContentID, p.Kind, p.RefID, p.Detail)
		}
		w.Flush()
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Scanned: %d, inconsistent: %d, problems: %d\n", report.Scanned, len(report.Failed), len(report.Problems))
	return clean, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8] + "..."
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
