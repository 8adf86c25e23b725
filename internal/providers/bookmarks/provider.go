package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/resilience"
)

// FileName is the bookmarks file inside a Chrome profile directory
const FileName = "Bookmarks"

// node is one entry of the bookmarks tree
type node struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Children []node `json:"children"`
}

type document struct {
	Roots map[string]node `json:"roots"`
}

// Provider answers bookmark lookups from a profile's Bookmarks file.
// The file is re-read when its modification time or size changes.
type Provider struct {
	path    string
	breaker *resilience.Breaker
	logger  *logging.Logger

	mu      sync.Mutex
	urls    map[string]struct{}
	modTime time.Time
	size    int64
	loaded  bool
}

// New creates a provider for the profile directory dir
func New(dir string, logger *logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	log := logger.Named("bookmarks")
	return &Provider{
		path: filepath.Join(dir, FileName),
		breaker: resilience.New("bookmarks", resilience.Settings{
			Cooldown: 30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				log.Info("Bookmark lookups circuit changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		logger: log,
		urls:   map[string]struct{}{},
	}
}

// WithBreaker replaces the circuit breaker guarding file reads
func (p *Provider) WithBreaker(b *resilience.Breaker) *Provider {
	p.breaker = b
	return p
}

// Path returns the bookmarks file being followed
func (p *Provider) Path() string {
	return p.path
}

// IsBookmarked reports whether url is bookmarked. An error means the answer
// is unknown; callers treat it as not bookmarked.
func (p *Provider) IsBookmarked(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.breaker.Execute(p.refresh); err != nil {
		return false, fmt.Errorf("bookmarks unavailable: %w", err)
	}
	_, ok := p.urls[url]
	return ok, nil
}

// Count returns how many distinct URLs are bookmarked as of the last read
func (p *Provider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}

// refresh must be called with mu held
func (p *Provider) refresh() error {
	info, err := os.Stat(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// a profile without bookmarks
			p.urls = map[string]struct{}{}
			p.loaded = true
			p.modTime, p.size = time.Time{}, 0
			return nil
		}
		return err
	}
	if p.loaded && info.ModTime().Equal(p.modTime) && info.Size() == p.size {
		return nil
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	urls, err := Parse(data)
	if err != nil {
		return err
	}

	p.urls = urls
	p.modTime = info.ModTime()
	p.size = info.Size()
	p.loaded = true
	p.logger.Debug("Loaded bookmarks", zap.String("path", p.path), zap.Int("urls", len(urls)))
	return nil
}

// Parse flattens a Chrome bookmarks document into its set of URLs
func Parse(data []byte) (map[string]struct{}, error) {
	var doc document
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bookmarks: %w", err)
	}
	urls := make(map[string]struct{})
	for _, root := range doc.Roots {
		collect(root, urls)
	}
	return urls, nil
}

func collect(n node, into map[string]struct{}) {
	if n.Type == "url" && n.URL != "" {
		into[n.URL] = struct{}{}
	}
	for _, child := range n.Children {
		collect(child, into)
	}
}
