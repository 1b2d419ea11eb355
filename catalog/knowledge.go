package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gautam1sharma/sopcompliance/cache"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/gautam1sharma/sopcompliance/embedding"
)

// KnowledgeBase holds the control catalog and one embedding per control.
// Controls are immutable once loaded and safe to share between requests.
type KnowledgeBase struct {
	source   Source
	cache    *cache.Cache
	pipeline *embedding.Pipeline
	logger   *slog.Logger

	mu          sync.RWMutex
	controls    map[string]*core.Control
	ordered     []*core.Control
	fingerprint string
	name        string
}

// Option configures a KnowledgeBase.
type Option func(*KnowledgeBase) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(kb *KnowledgeBase) error {
		if logger == nil {
			logger = slog.Default()
		}
		kb.logger = logger.With("component", "catalog")
		return nil
	}
}

// New creates a knowledge base. A nil source always uses the fallback catalog.
func New(source Source, c *cache.Cache, pipeline *embedding.Pipeline, opts ...Option) (*KnowledgeBase, error) {
	if c == nil {
		return nil, ErrCacheRequired
	}
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}

	kb := &KnowledgeBase{
		source:   source,
		cache:    c,
		pipeline: pipeline,
		logger:   slog.Default().With("component", "catalog"),
	}
	for _, opt := range opts {
		if err := opt(kb); err != nil {
			return nil, err
		}
	}
	return kb, nil
}

// Load reads the catalog and embeds every control. The catalog is read from
// the cache first, then from the source. An unavailable source falls back to
// the built-in catalog. Subsequent calls reload; embeddings come from the
// cache when present.
func (kb *KnowledgeBase) Load(ctx context.Context) (map[string]*core.Control, error) {
	name, raw, err := kb.readCatalog(ctx)
	if err != nil {
		return nil, err
	}

	controls := make(map[string]*core.Control, len(raw))
	ordered := make([]*core.Control, 0, len(raw))
	for id, record := range raw {
		control := &core.Control{
			ID:          id,
			Name:        record.Name,
			Description: record.Description,
			Keywords:    record.Keywords,
		}
		if err := core.ValidateControl(control); err != nil {
			return nil, err
		}
		if len(control.Keywords) == 0 {
			control.Keywords = GenerateKeywords(control.Name)
		}
		controls[id] = control
		ordered = append(ordered, control)
	}
	sortControls(ordered)

	texts := make([]string, len(ordered))
	for i, control := range ordered {
		texts[i] = control.Text()
	}
	vectors, err := kb.pipeline.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding controls: %w", err)
	}
	for i, control := range ordered {
		control.Embedding = append([]float32(nil), vectors[i]...)
	}

	fingerprint := computeFingerprint(kb.pipeline.Model(), ordered)

	kb.mu.Lock()
	kb.controls = controls
	kb.ordered = ordered
	kb.fingerprint = fingerprint
	kb.name = name
	kb.mu.Unlock()

	kb.logger.Info("catalog loaded", "catalog", name, "controls", len(ordered))
	return controls, nil
}

func (kb *KnowledgeBase) readCatalog(ctx context.Context) (string, map[string]RawControl, error) {
	if kb.source == nil {
		kb.logger.Warn("no catalog source configured, using fallback catalog")
		return FallbackName, Fallback(), nil
	}

	name := kb.source.Name()
	key := cache.CatalogKey(name)

	var raw map[string]RawControl
	if kb.cache.GetJSON(ctx, key, &raw) && len(raw) > 0 {
		kb.logger.Debug("catalog served from cache", "catalog", name)
		return name, raw, nil
	}

	raw, err := kb.source.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			kb.logger.Warn("catalog source unavailable, using fallback catalog",
				"catalog", name, "error", err)
			return FallbackName, Fallback(), nil
		}
		return "", nil, err
	}

	kb.cache.SetJSON(ctx, key, raw, cache.TTLCatalog)
	return name, raw, nil
}

// Warm loads the catalog so that control embeddings are cached.
// Returns the number of controls.
func (kb *KnowledgeBase) Warm(ctx context.Context) (int, error) {
	controls, err := kb.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(controls), nil
}

// Loaded reports whether Load has completed successfully.
func (kb *KnowledgeBase) Loaded() bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.ordered != nil
}

// Name returns the name of the loaded catalog, FallbackName when the
// built-in catalog is in use.
func (kb *KnowledgeBase) Name() string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.name
}

// Controls returns the loaded controls in natural id order.
func (kb *KnowledgeBase) Controls() []*core.Control {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]*core.Control, len(kb.ordered))
	copy(out, kb.ordered)
	return out
}

// Control returns a loaded control by id.
func (kb *KnowledgeBase) Control(id string) (*core.Control, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	control, ok := kb.controls[id]
	return control, ok
}

// Fingerprint identifies the loaded catalog contents and embedding model.
// It changes whenever any control text changes.
func (kb *KnowledgeBase) Fingerprint() string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.fingerprint
}

func computeFingerprint(model string, controls []*core.Control) string {
	var b strings.Builder
	b.WriteString(model)
	for _, control := range controls {
		b.WriteByte('\n')
		b.WriteString(control.ID)
		b.WriteByte('\t')
		b.WriteString(control.Text())
	}
	return core.ContentHash(b.String())
}

// sortControls orders controls by id, comparing dot-separated numeric parts
// numerically so that 5.2 sorts before 5.10.
func sortControls(controls []*core.Control) {
	sort.SliceStable(controls, func(i, j int) bool {
		return LessID(controls[i].ID, controls[j].ID)
	})
}

// LessID reports whether control id a sorts before b in natural order.
func LessID(a, b string) bool {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] == pb[i] {
			continue
		}
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				return na < nb
			}
			return pa[i] < pb[i]
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return pa[i] < pb[i]
		}
	}
	if len(pa) != len(pb) {
		return len(pa) < len(pb)
	}
	return a < b
}
