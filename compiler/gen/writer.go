package gen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"
)

// writer renders model files with a bounded number of parallel workers.
type writer struct {
	cfg *Config

	mu      sync.Mutex
	metrics Metrics
}

func newWriter(cfg *Config) *writer {
	return &writer{cfg: cfg}
}

// writeAll generates all files in parallel.
func (w *writer) writeAll(ctx context.Context, files []*modelFile) error {
	if err := os.MkdirAll(w.cfg.Target, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.cfg.Workers)
	for _, f := range files {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return w.write(f)
			}
		})
	}
	return eg.Wait()
}

// write generates a single file.
func (w *writer) write(f *modelFile) error {
	fullPath := filepath.Join(w.cfg.Target, f.Path())
	formatted, err := format(fullPath, f.render(w.cfg.Header))
	if err != nil {
		return NewGenerationError(f.model.Name, f.Path(), "", err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return NewGenerationError(f.model.Name, f.Path(), "create directory", err)
	}
	if err := os.WriteFile(fullPath, formatted, 0o644); err != nil {
		return NewGenerationError(f.model.Name, f.Path(), "write", err)
	}
	w.cfg.Logger.Debug("wrote model package", "model", f.model.Name, "path", fullPath)

	w.mu.Lock()
	w.metrics.Files = append(w.metrics.Files, f.Path())
	w.metrics.TotalBytes += int64(len(formatted))
	w.mu.Unlock()
	return nil
}

// format renders a jennifer file and runs goimports over it. When
// formatting fails the unformatted source is written next to the target
// with an ".error" suffix for debugging.
func format(fullPath string, file *jen.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := file.Render(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", fullPath, err)
	}
	formatted, err := imports.Process(fullPath, buf.Bytes(), nil)
	if err != nil {
		debugPath := fullPath + ".error"
		_ = os.MkdirAll(filepath.Dir(debugPath), 0o755)
		_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
		return nil, fmt.Errorf("format %s: %w (unformatted written to %s)", fullPath, err, debugPath)
	}
	return formatted, nil
}
