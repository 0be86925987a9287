package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-graph/pkg/contentgraph"
	"github.com/tendant/content-graph/pkg/contentgraph/repo/memory"
)

func seededRepo(t *testing.T) (*memory.Repository, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	layer := uuid.New()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, tag := range []string{"news", "news", "sports"} {
		require.NoError(t, repo.SaveContent(ctx, &contentgraph.Content{
			ID:        uuid.New(),
			Type:      contentgraph.ContentTypePost,
			Title:     "post",
			LayerID:   layer,
			Tags:      []string{tag},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	return repo, layer
}

func runCLI(t *testing.T, repo contentgraph.Repository, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	code := run(context.Background(), repo, logger, args, &out)
	return code, out.String()
}

func TestUsage(t *testing.T) {
	code, out := runCLI(t, memory.New())
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "USAGE")

	code, _ = runCLI(t, memory.New(), "help")
	assert.Equal(t, 0, code)

	code, out = runCLI(t, memory.New(), "list", "--limit=abc")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "invalid --limit")
}

func TestListJSON(t *testing.T) {
	repo, _ := seededRepo(t)

	code, out := runCLI(t, repo, "list", "--tag=NEWS", "--json")
	require.Equal(t, 0, code)

	var contents []contentgraph.Content
	require.NoError(t, json.Unmarshal([]byte(out), &contents))
	assert.Len(t, contents, 2)
}

func TestStats(t *testing.T) {
	repo, layer := seededRepo(t)

	code, out := runCLI(t, repo, "stats", "--batch-size=2", "--json")
	require.Equal(t, 0, code)

	var stats Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(3), stats.TotalCount)
	assert.Equal(t, int64(2), stats.ByTag["news"])
	assert.Equal(t, int64(3), stats.ByLayer[layer])
	assert.Equal(t, int64(3), stats.ByType[contentgraph.ContentTypePost])
}

func TestCheck(t *testing.T) {
	repo, _ := seededRepo(t)

	code, out := runCLI(t, repo, "check")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Scanned: 3, inconsistent: 0")

	broken := &contentgraph.Content{
		ID:       uuid.New(),
		Type:     contentgraph.ContentTypePost,
		Features: []uuid.UUID{uuid.New()},
	}
	require.NoError(t, repo.SaveContent(context.Background(), broken))

	code, out = runCLI(t, repo, "check", "--json")
	assert.Equal(t, 2, code)

	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []uuid.UUID{broken.ID}, report.Failed)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, "missing_feature", string(report.Problems[0].Kind))
}
