// Package store persists registry state to a file or keeps it in memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/git-pkgs/taxonomy/internal/core"
)

// ErrUnknownFormat is returned for a file extension with no codec.
var ErrUnknownFormat = errors.New("unknown config file format")

// Format is a serialization of core.State.
type Format string

const (
	JSON Format = "json"
	TOML Format = "toml"
	YAML Format = "yaml"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

func (f Format) marshal(s *core.State) ([]byte, error) {
	switch f {
	case JSON:
		return sonic.ConfigStd.MarshalIndent(s, "", "  ")
	case TOML:
		return toml.Marshal(s)
	case YAML:
		return yaml.Marshal(s)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

func (f Format) unmarshal(data []byte, s *core.State) error {
	switch f {
	case JSON:
		return sonic.ConfigStd.Unmarshal(data, s)
	case TOML:
		return toml.Unmarshal(data, s)
	case YAML:
		return yaml.Unmarshal(data, s)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// File stores state in a single file whose extension selects the format.
type File struct {
	path   string
	format Format
	mu     sync.Mutex
}

// NewFile returns a store for path. The file need not exist yet.
func NewFile(path string) (*File, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	return &File{path: path, format: format}, nil
}

// Path returns the backing file.
func (f *File) Path() string {
	return f.path
}

// Load reads the saved state, or returns nil, nil when the file does not exist.
func (f *File) Load(ctx context.Context) (*core.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var state core.State
	if err := f.format.unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	for i := range state.Packages {
		if state.Packages[i].Status == "" {
			state.Packages[i].Status = core.StatusEnabled
		}
	}
	return &state, nil
}

// Save writes state atomically, creating parent directories as needed.
func (f *File) Save(ctx context.Context, state *core.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.format.marshal(state)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, f.path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Memory keeps state in process. It is mostly useful in tests.
type Memory struct {
	mu    sync.Mutex
	state *core.State
	saves int
}

// NewMemory returns a store preloaded with state, which may be nil.
func NewMemory(state *core.State) *Memory {
	return &Memory{state: cloneState(state)}
}

// Load returns a copy of the stored state.
func (m *Memory) Load(ctx context.Context) (*core.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneState(m.state), nil
}

// Save replaces the stored state with a copy of state.
func (m *Memory) Save(ctx context.Context, state *core.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cloneState(state)
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func cloneState(s *core.State) *core.State {
	if s == nil {
		return nil
	}
	c := &core.State{Packages: make([]core.PackageInfo, len(s.Packages))}
	for i, p := range s.Packages {
		c.Packages[i] = p.Clone()
	}
	c.Remappings = maps.Clone(s.Remappings)
	return c
}
