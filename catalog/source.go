package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// metadataKey is a reserved top-level key that never names a control.
const metadataKey = "metadata"

// RawControl is one normalized catalog record.
type RawControl struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Source provides the canonical control catalog.
type Source interface {
	// Name identifies the catalog in cache keys.
	Name() string

	// Read returns the catalog keyed by control id.
	// Returns ErrSourceUnavailable when the catalog cannot be read.
	Read(ctx context.Context) (map[string]RawControl, error)
}

// FileSource reads a catalog file. The format follows the extension:
// .json, .yaml, .yml or .toml.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a source for the catalog file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the file name without its extension.
func (s *FileSource) Name() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Path returns the catalog file path.
func (s *FileSource) Path() string {
	return s.path
}

// Read loads and decodes the catalog file. Missing, unreadable and
// undecodable files are reported as ErrSourceUnavailable. Records that decode
// but are malformed are reported as core.ErrInvalidControl.
func (s *FileSource) Read(ctx context.Context) (map[string]RawControl, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrSourceUnavailable, s.path)
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	records, err := Decode(data, filepath.Ext(s.path))
	if err != nil {
		if errors.Is(err, core.ErrInvalidControl) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.path, err)
	}
	return records, nil
}

// MapSource serves a catalog held in memory.
type MapSource struct {
	name     string
	controls map[string]RawControl
}

var _ Source = (*MapSource)(nil)

// NewMapSource creates a source over controls.
func NewMapSource(name string, controls map[string]RawControl) *MapSource {
	return &MapSource{name: name, controls: controls}
}

// Name returns the catalog name.
func (s *MapSource) Name() string {
	return s.name
}

// Read returns a copy of the catalog. A nil catalog is unavailable.
func (s *MapSource) Read(ctx context.Context) (map[string]RawControl, error) {
	if s.controls == nil {
		return nil, ErrSourceUnavailable
	}
	out := make(map[string]RawControl, len(s.controls))
	for id, control := range s.controls {
		out[id] = control
	}
	return out, nil
}

// Decode parses catalog data in the format named by ext (with or without
// the leading dot) and normalizes every record.
func Decode(data []byte, ext string) (map[string]RawControl, error) {
	var records map[string]any
	var err error

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "json":
		err = json.Unmarshal(data, &records)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &records)
	case "toml":
		err = toml.Unmarshal(data, &records)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return normalize(records)
}

// normalize turns decoded records, which may be plain strings or tables,
// into RawControl values. The metadata entry is skipped.
func normalize(records map[string]any) (map[string]RawControl, error) {
	controls := make(map[string]RawControl, len(records))
	for id, record := range records {
		if id == metadataKey {
			continue
		}
		control, err := normalizeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: control %q: %w", core.ErrInvalidControl, id, err)
		}
		controls[id] = control
	}
	return controls, nil
}

func normalizeRecord(record any) (RawControl, error) {
	switch v := record.(type) {
	case string:
		return RawControl{Name: v}, nil
	case map[string]any:
		var control RawControl
		if name, ok := v["name"]; ok {
			s, ok := name.(string)
			if !ok {
				return control, fmt.Errorf("name must be a string, got %T", name)
			}
			control.Name = s
		}
		if desc, ok := v["description"]; ok && desc != nil {
			s, ok := desc.(string)
			if !ok {
				return control, fmt.Errorf("description must be a string, got %T", desc)
			}
			if s != "" {
				control.Description = &s
			}
		}
		if kw, ok := v["keywords"]; ok && kw != nil {
			keywords, err := normalizeKeywords(kw)
			if err != nil {
				return control, err
			}
			control.Keywords = keywords
		}
		return control, nil
	default:
		return RawControl{}, fmt.Errorf("unsupported record type %T", record)
	}
}

func normalizeKeywords(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		keywords := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("keywords must be strings, got %T", item)
			}
			keywords = append(keywords, s)
		}
		return keywords, nil
	default:
		return nil, fmt.Errorf("keywords must be a list, got %T", value)
	}
}
