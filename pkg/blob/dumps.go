package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// DumpKey is where the dump of a run taken at ts is archived.
func DumpKey(runID string, ts time.Time) string {
	return fmt.Sprintf("dumps/%s/%s.txt", runID, ts.UTC().Format("20060102T150405.000000000Z"))
}

// ArchiveDump writes the text dump of g under DumpKey and returns the key.
func ArchiveDump(ctx context.Context, s BlobStore, runID string, ts time.Time, g *graph.Graph) (string, error) {
	var buf bytes.Buffer
	if err := g.Dump(&buf); err != nil {
		return "", fmt.Errorf("failed to render dump: %w", err)
	}
	key := DumpKey(runID, ts)
	if err := s.Put(ctx, key, &buf); err != nil {
		return "", err
	}
	return key, nil
}

// ReadDump returns an archived dump.
func ReadDump(ctx context.Context, s BlobStore, key string) (string, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read dump %s: %w", key, err)
	}
	return string(data), nil
}
