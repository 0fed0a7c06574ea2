package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-style/internal/decoder"
	"github.com/joeblew999/plat-style/internal/style"
	"github.com/joeblew999/plat-style/internal/theme"
)

// ThemeService manages theme documents on disk and a cache of compiled
// evaluators. Compiled evaluators are immutable; the cache hands the same
// instance to every concurrent decode and is only invalidated when the
// underlying theme document changes.
type ThemeService struct {
	themesDir string

	mu     sync.RWMutex
	themes map[string]*theme.Theme
	// decoders is keyed "themeID/styleSet".
	decoders map[string]*decoder.Decoder
}

// NewThemeService loads every theme document under dataDir/themes.
// Documents that fail to parse are logged and skipped so one broken file
// does not take the service down.
func NewThemeService(dataDir string) *ThemeService {
	s := &ThemeService{
		themesDir: filepath.Join(dataDir, "themes"),
		themes:    make(map[string]*theme.Theme),
		decoders:  make(map[string]*decoder.Decoder),
	}
	s.loadFromDisk()
	return s
}

func themeExt(name string) (id, format string, ok bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return strings.TrimSuffix(name, ext), "json", true
	case ".yml", ".yaml":
		return strings.TrimSuffix(name, ext), "yaml", true
	default:
		return "", "", false
	}
}

func (s *ThemeService) loadFromDisk() {
	entries, err := os.ReadDir(s.themesDir)
	if err != nil {
		return // no themes yet
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, _, ok := themeExt(entry.Name())
		if !ok {
			continue
		}
		t, err := theme.Load(filepath.Join(s.themesDir, entry.Name()))
		if err != nil {
			logrus.WithError(err).WithField("theme", entry.Name()).
				Warn("skipping unparsable theme")
			continue
		}
		s.themes[id] = t
	}
}

// List returns the stored themes.
func (s *ThemeService) List() []ThemeFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var files []ThemeFile
	entries, err := os.ReadDir(s.themesDir)
	if err != nil {
		return files
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, format, ok := themeExt(entry.Name())
		if !ok {
			continue
		}
		t, loaded := s.themes[id]
		if !loaded {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sets := t.StyleSetNames()
		sort.Strings(sets)
		files = append(files, ThemeFile{
			ID:        id,
			Name:      entry.Name(),
			Size:      formatSize(info.Size()),
			Format:    format,
			StyleSets: sets,
		})
	}
	return files
}

// Get returns a loaded theme by ID.
func (s *ThemeService) Get(id string) (*theme.Theme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.themes[id]
	return t, ok
}

// Save validates and stores a theme document, replacing any previous
// version. Validation compiles every style set; an uncompilable theme is
// rejected and the previous version stays active.
func (s *ThemeService) Save(id string, data []byte, format string) error {
	if strings.ContainsAny(id, "/\\.") {
		return fmt.Errorf("invalid theme id %q", id)
	}
	ext := ".json"
	parseExt := ".json"
	if format == "yaml" {
		ext, parseExt = ".yaml", ".yaml"
	}

	t, err := theme.Parse(data, parseExt)
	if err != nil {
		return fmt.Errorf("theme %q does not parse: %w", id, err)
	}
	// Flatten extends against the themes dir so validation sees the same
	// document a reload from disk would produce.
	t, err = t.ResolveExtends(s.themesDir)
	if err != nil {
		return fmt.Errorf("theme %q: %w", id, err)
	}
	for _, set := range t.StyleSetNames() {
		if _, err := style.Compile(set, t); err != nil {
			return fmt.Errorf("theme %q: %w", id, err)
		}
	}

	if err := os.MkdirAll(s.themesDir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.themesDir, id+ext), data, 0644); err != nil {
		return err
	}

	s.mu.Lock()
	s.themes[id] = t
	s.invalidate(id)
	s.mu.Unlock()

	DefaultBus.Publish(Event{Resource: ResourceThemes, Action: ActionUpdated, ID: id})
	return nil
}

// Delete removes a theme and its compiled evaluators.
func (s *ThemeService) Delete(id string) error {
	s.mu.Lock()
	_, exists := s.themes[id]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("theme %q not found", id)
	}
	delete(s.themes, id)
	s.invalidate(id)
	s.mu.Unlock()

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		if err := os.Remove(filepath.Join(s.themesDir, id+ext)); err == nil {
			break
		}
	}

	DefaultBus.Publish(Event{Resource: ResourceThemes, Action: ActionDeleted, ID: id})
	return nil
}

// invalidate drops cached decoders for a theme. Callers hold s.mu.
func (s *ThemeService) invalidate(id string) {
	prefix := id + "/"
	for key := range s.decoders {
		if strings.HasPrefix(key, prefix) {
			delete(s.decoders, key)
		}
	}
}

// DecoderFor returns the cached decoder for a theme's style set, compiling
// it on first use.
func (s *ThemeService) DecoderFor(themeID, styleSet string) (*decoder.Decoder, error) {
	key := themeID + "/" + styleSet

	s.mu.RLock()
	d, ok := s.decoders[key]
	t := s.themes[themeID]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}
	if t == nil {
		return nil, fmt.Errorf("theme %q not found", themeID)
	}

	ev, err := style.Compile(styleSet, t)
	if err != nil {
		return nil, err
	}
	d = decoder.New(ev)

	s.mu.Lock()
	// Another goroutine may have compiled it meanwhile; keep the first.
	if cached, ok := s.decoders[key]; ok {
		d = cached
	} else {
		s.decoders[key] = d
	}
	s.mu.Unlock()
	return d, nil
}

// Decoder implements decoder.EvaluatorSource. The identifier has the form
// "themeID/styleSet".
func (s *ThemeService) Decoder(identifier string) (*decoder.Decoder, error) {
	themeID, styleSet, ok := strings.Cut(identifier, "/")
	if !ok {
		return nil, fmt.Errorf("style set identifier %q must be themeID/styleSet", identifier)
	}
	return s.DecoderFor(themeID, styleSet)
}

var _ decoder.EvaluatorSource = (*ThemeService)(nil)

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
