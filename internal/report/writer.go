package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/marketing-pulse/internal/pkg/logger"
)

// Mirror copies a written artifact to secondary storage. Mirror failures are
// logged but never fail the run; the local file is the contract.
type Mirror interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Writer persists the weekly artifact: atomic whole-file replace locally,
// plus an optional mirror.
type Writer struct {
	path   string
	mirror Mirror
	now    func() time.Time
}

// NewWriter creates a Writer for the given local path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// SetMirror attaches secondary storage for the artifact.
func (w *Writer) SetMirror(m Mirror) { w.mirror = m }

// SetClock overrides the generatedAt clock (tests).
func (w *Writer) SetClock(now func() time.Time) { w.now = now }

// Write stamps generatedAt, defaults weekOf when the generator omitted it,
// and replaces the artifact on disk. A reader never observes a half-written
// document: the JSON is written to a temp file in the destination directory
// and renamed over the final path.
func (w *Writer) Write(ctx context.Context, artifact *Artifact, defaultWeekOf string) error {
	artifact.GeneratedAt = w.now().UTC().Format(time.RFC3339)
	if artifact.WeekOf == "" {
		artifact.WeekOf = artifact.Narrative.WeekOf
	}
	if artifact.WeekOf == "" {
		artifact.WeekOf = defaultWeekOf
	}
	// The embedded copy is redundant once lifted to the top level.
	artifact.Narrative.WeekOf = ""

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}

	if err := atomicWrite(w.path, data); err != nil {
		return fmt.Errorf("writing artifact to %s: %w", w.path, err)
	}
	logger.Info("artifact written", "path", w.path, "weekOf", artifact.WeekOf, "bytes", len(data))

	if w.mirror != nil {
		key := fmt.Sprintf("reports/%s.json", artifact.WeekOf)
		if err := w.mirror.Put(ctx, key, data); err != nil {
			logger.Warn("artifact mirror failed", "key", key, "error", err)
		}
	}

	return nil
}

// atomicWrite replaces path with data via temp file + rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Read loads the artifact from disk. Returns os.ErrNotExist (wrapped) before
// the first run has completed.
func Read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parsing artifact %s: %w", path, err)
	}
	return &artifact, nil
}
