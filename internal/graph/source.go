package graph

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var embeddedGraphs []byte

// Source fetches the raw node list of one graph.
type Source interface {
	Fetch(ctx context.Context, graphID string) ([]Node, error)
}

// Paths helper for graph files.
type Paths struct {
	BaseDir string // e.g. /opt/app/config
}

func (p Paths) GraphPath(graphID string) string {
	return filepath.Join(p.BaseDir, "graphs", graphID+".yaml")
}

// BundlePath is the optional multi-graph file.
func (p Paths) BundlePath() string {
	return filepath.Join(p.BaseDir, "graphs.yaml")
}

// FileSource reads graphs/<id>.yaml, then falls back to the graphs.yaml bundle.
type FileSource struct {
	paths Paths
}

func NewFileSource(baseDir string) *FileSource {
	return &FileSource{paths: Paths{BaseDir: baseDir}}
}

func (f *FileSource) Paths() Paths { return f.paths }

func (f *FileSource) Fetch(ctx context.Context, graphID string) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var nodes []Node
	found, err := readYAML(f.paths.GraphPath(graphID), &nodes)
	if err != nil {
		return nil, fmt.Errorf("read graph %q: %w", graphID, err)
	}
	if found {
		return nodes, nil
	}

	var b bundle
	found, err = readYAML(f.paths.BundlePath(), &b)
	if err != nil {
		return nil, fmt.Errorf("read graph bundle: %w", err)
	}
	if found {
		if nodes, ok := b.Graphs[graphID]; ok {
			return nodes, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, graphID)
}

// EmbeddedSource serves graphs compiled into the binary.
type EmbeddedSource struct {
	graphs map[string][]Node
}

// NewEmbeddedSource parses the built-in graph bundle.
func NewEmbeddedSource() (*EmbeddedSource, error) {
	var b bundle
	if err := yaml.Unmarshal(embeddedGraphs, &b); err != nil {
		return nil, fmt.Errorf("parse embedded graphs: %w", err)
	}
	return &EmbeddedSource{graphs: b.Graphs}, nil
}

// StaticSource serves the given graphs, mostly for tests and simulations.
func StaticSource(graphs map[string][]Node) *EmbeddedSource {
	return &EmbeddedSource{graphs: graphs}
}

func (e *EmbeddedSource) Fetch(ctx context.Context, graphID string) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, ok := e.graphs[graphID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, graphID)
	}
	return cloneNodes(nodes), nil
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) Fetch(ctx context.Context, graphID string) ([]Node, error) {
	var errs []error
	for _, src := range c {
		nodes, err := src.Fetch(ctx, graphID)
		if err == nil {
			return nodes, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, graphID)
	}
	return nil, errors.Join(errs...)
}

// readYAML decodes path into out. A missing file reports found=false, no error.
func readYAML(path string, out any) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}
