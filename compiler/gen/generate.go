package gen

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/syssam/quarry/schema"
)

// Metrics reports what a generation run wrote.
type Metrics struct {
	// Files holds the written paths relative to the target, sorted.
	Files      []string
	TotalBytes int64
}

// Generate writes the typed column package of every model of the snapshot
// under the configured target directory.
func Generate(ctx context.Context, snap *schema.Snapshot, opts ...Option) (*Metrics, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Target == "" {
		return nil, NewConfigError("Target", nil, "missing target directory in config")
	}
	files, err := modelFiles(snap, cfg.Models)
	if err != nil {
		return nil, err
	}
	w := newWriter(cfg)
	if err := w.writeAll(ctx, files); err != nil {
		return nil, err
	}
	sort.Strings(w.metrics.Files)
	cfg.Logger.Info("generated model packages", "target", cfg.Target, "files", len(w.metrics.Files), "bytes", w.metrics.TotalBytes)
	return &w.metrics, nil
}

// Render returns the formatted source of the package generated for one
// model, without writing it.
func Render(snap *schema.Snapshot, model string, opts ...Option) ([]byte, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	files, err := modelFiles(snap, []string{model})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, NewGenerationError(model, "", "join tables have no package", nil)
	}
	return format(filepath.Join(cfg.Target, files[0].Path()), files[0].render(cfg.Header))
}

// modelFiles returns the files of the selected models in registration
// order. Join tables get no file.
func modelFiles(snap *schema.Snapshot, names []string) ([]*modelFile, error) {
	models := snap.Models()
	if len(names) > 0 {
		models = models[:0]
		for _, name := range names {
			m, ok := snap.Model(name)
			if !ok {
				return nil, NewConfigError("Models", name, "model is not part of the schema")
			}
			models = append(models, m)
		}
	}
	var (
		files = make([]*modelFile, 0, len(models))
		pkgs  = make(map[string]string, len(models))
	)
	for _, m := range models {
		if m.JoinTable {
			continue
		}
		f, err := newModelFile(m)
		if err != nil {
			return nil, err
		}
		if prev, ok := pkgs[f.pkg]; ok {
			if prev == m.Name {
				continue
			}
			return nil, NewGenerationError(m.Name, f.Path(), fmt.Sprintf("package %q is also generated for %s", f.pkg, prev), nil)
		}
		pkgs[f.pkg] = m.Name
		files = append(files, f)
	}
	return files, nil
}
