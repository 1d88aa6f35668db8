// Package catalog holds the named document images a search service can
// query. All images share one vocabulary registry, so a query parsed once
// can be run against any of them.
package catalog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
)

// Summary describes a catalog entry without exposing the image.
type Summary struct {
	Name        string    `json:"name"`
	Lines       int       `json:"lines"`
	Tokens      int       `json:"tokens"`
	Vocabulary  int       `json:"vocabulary"`
	LongestLine int       `json:"longest_line"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// ChangeFunc is called after a document is added, replaced, or removed.
// removed is true only for removals.
type ChangeFunc func(name string, removed bool)

type entry struct {
	img      *document.Image
	loadedAt time.Time
}

func (e entry) summary(name string) Summary {
	return Summary{
		Name:        name,
		Lines:       e.img.NumLines(),
		Tokens:      e.img.TokenCount(),
		Vocabulary:  e.img.VocabularySize(),
		LongestLine: e.img.LongestLine(),
		LoadedAt:    e.loadedAt,
	}
}

type Catalog struct {
	mu         sync.RWMutex
	docs       map[string]entry
	registry   *vocabulary.Registry
	splitter   tokenizer.Splitter
	extensions []string
	hooks      []ChangeFunc
	logger     *slog.Logger
}

// New creates an empty catalog. extensions filters LoadDir and the watcher;
// an empty list accepts every regular file.
func New(registry *vocabulary.Registry, splitter tokenizer.Splitter, extensions []string) *Catalog {
	if registry == nil {
		registry = vocabulary.NewRegistry(nil)
	}
	if splitter == nil {
		splitter = tokenizer.Whitespace{}
	}
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return &Catalog{
		docs:       make(map[string]entry),
		registry:   registry,
		splitter:   splitter,
		extensions: exts,
		logger:     slog.Default().With("component", "catalog"),
	}
}

// FromConfig builds an empty catalog with the splitter and normaliser the
// configuration names.
func FromConfig(tc config.TokenizerConfig, dc config.DocumentsConfig) (*Catalog, error) {
	norm, err := vocabulary.NormalizerByName(tc.Normalizer)
	if err != nil {
		return nil, err
	}
	splitter, err := tokenizer.ByName(tc.Splitter, tc.StopWords)
	if err != nil {
		return nil, err
	}
	return New(vocabulary.NewRegistry(norm), splitter, dc.Extensions), nil
}

func (c *Catalog) Registry() *vocabulary.Registry { return c.registry }

func (c *Catalog) Splitter() tokenizer.Splitter { return c.splitter }

// OnChange registers fn to run after every change. Hooks run synchronously
// outside the catalog lock, in registration order.
func (c *Catalog) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Put adds img under its name, replacing any previous image of that name.
func (c *Catalog) Put(img *document.Image) {
	c.mu.Lock()
	_, replaced := c.docs[img.Name()]
	c.docs[img.Name()] = entry{img: img, loadedAt: time.Now()}
	hooks := slices.Clone(c.hooks)
	c.mu.Unlock()

	c.logger.Info("document stored",
		"name", img.Name(),
		"lines", img.NumLines(),
		"tokens", img.TokenCount(),
		"replaced", replaced,
	)
	for _, fn := range hooks {
		fn(img.Name(), false)
	}
}

// Get returns the image stored under name.
func (c *Catalog) Get(name string) (*document.Image, error) {
	c.mu.RLock()
	e, ok := c.docs[name]
	c.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFoundf("document %q", name)
	}
	return e.img, nil
}

// Remove deletes name and reports whether it was present.
func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	_, ok := c.docs[name]
	delete(c.docs, name)
	hooks := slices.Clone(c.hooks)
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.logger.Info("document removed", "name", name)
	for _, fn := range hooks {
		fn(name, true)
	}
	return true
}

// Stat returns the summary of one document.
func (c *Catalog) Stat(name string) (Summary, error) {
	c.mu.RLock()
	e, ok := c.docs[name]
	c.mu.RUnlock()
	if !ok {
		return Summary{}, apperrors.NotFoundf("document %q", name)
	}
	return e.summary(name), nil
}

// List returns a summary of every document, sorted by name.
func (c *Catalog) List() []Summary {
	c.mu.RLock()
	out := make([]Summary, 0, len(c.docs))
	for name, e := range c.docs {
		out = append(out, e.summary(name))
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b Summary) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Len returns the number of documents.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// TokenCount returns the total word occurrences across all documents.
func (c *Catalog) TokenCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, e := range c.docs {
		total += e.img.TokenCount()
	}
	return total
}

// Load reads a document from r and stores it under name.
func (c *Catalog) Load(name string, r io.Reader) (*document.Image, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	img, err := document.Load(name, r, c.registry, c.splitter)
	if err != nil {
		return nil, err
	}
	c.Put(img)
	return img, nil
}

// LoadFile reads the file at path and stores it under its base name.
func (c *Catalog) LoadFile(path string) (*document.Image, error) {
	img, err := document.LoadFile(path, c.registry, c.splitter)
	if err != nil {
		return nil, err
	}
	c.Put(img)
	return img, nil
}

// LoadDir loads every accepted regular file directly inside dir and returns
// how many were loaded. A file that fails to load is logged and skipped.
func (c *Catalog) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading document directory %s: %w", dir, err)
	}
	loaded := 0
	for _, de := range entries {
		if !de.Type().IsRegular() || !c.Accepts(de.Name()) {
			continue
		}
		path := filepath.Join(dir, de.Name())
		if _, err := c.LoadFile(path); err != nil {
			c.logger.Error("failed to load document", "path", path, "error", err)
			continue
		}
		loaded++
	}
	c.logger.Info("document directory loaded", "dir", dir, "documents", loaded)
	return loaded, nil
}

// Accepts reports whether a file name passes the extension filter.
func (c *Catalog) Accepts(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(c.extensions) == 0 {
		return true
	}
	return slices.Contains(c.extensions, strings.ToLower(filepath.Ext(base)))
}

// ValidateName rejects names that can not be used as a document key in URLs
// and file names.
func ValidateName(name string) error {
	switch {
	case name == "":
		return apperrors.InvalidInputf("document name is required")
	case len(name) > 255:
		return apperrors.InvalidInputf("document name longer than 255 bytes")
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return apperrors.InvalidInputf("document name %q must not contain path separators", name)
	}
	return nil
}
