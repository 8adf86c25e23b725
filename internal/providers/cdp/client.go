package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// ErrNotConnected is returned by every operation before Connect succeeds
var ErrNotConnected = errors.New("browser not connected")

// Client drives a running Chromium over the DevTools protocol. It lists
// windows, moves and opens tabs, and feeds target discovery events.
type Client struct {
	url       string
	instance  string
	discovery *Discovery
	logger    *logging.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	// self is the blank tab created for the control session, if any
	self           target.ID
	defaultContext cdp.BrowserContextID

	mu       sync.Mutex
	aliases  map[types.TabID]types.TabID
	sessions map[target.ID]context.CancelFunc
	contexts map[target.ID]context.Context
}

// New creates a client for a DevTools base URL
func New(url string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		url:       url,
		discovery: NewDiscovery(url),
		logger:    logger.Named("cdp"),
		aliases:   make(map[types.TabID]types.TabID),
		sessions:  make(map[target.ID]context.CancelFunc),
		contexts:  make(map[target.ID]context.Context),
	}
}

// Connect attaches to the browser. An existing page hosts the control
// session so that connecting does not open a tab.
func (c *Client) Connect(ctx context.Context) error {
	version, err := c.discovery.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach browser: %w", err)
	}
	c.instance = instanceOf(version.WebSocketDebuggerURL)
	c.logger.Info("Connecting to browser",
		zap.String("url", c.url),
		zap.String("browser", version.Browser),
		zap.String("instance", c.instance),
	)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.url)

	var opts []chromedp.ContextOption
	pages, err := c.discovery.Pages(ctx)
	if err != nil {
		c.logger.Warn("Failed to list pages, opening a control tab", zap.Error(err))
	}
	if len(pages) > 0 {
		opts = append(opts, chromedp.WithTargetID(target.ID(pages[0].ID)))
	}

	c.ctx, c.cancel = chromedp.NewContext(c.allocCtx, opts...)
	if err := chromedp.Run(c.ctx); err != nil {
		c.allocCancel()
		c.ctx = nil
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	control := chromedp.FromContext(c.ctx).Target
	if control != nil {
		if len(opts) == 0 {
			c.self = control.TargetID
		}
		if ectx, err := c.exec(ctx); err == nil {
			if info, err := target.GetTargetInfo().WithTargetID(control.TargetID).Do(ectx); err == nil {
				c.defaultContext = info.BrowserContextID
			}
		}
	}

	c.logger.Info("Connected to browser", zap.Int("pages", len(pages)), zap.Bool("control_tab", c.self != ""))
	return nil
}

// Instance names the connected browser run. Chromium mints a new browser
// target id at every launch, and window ids restart with it.
func (c *Client) Instance() string {
	return c.instance
}

// instanceOf takes the browser id from ws://host/devtools/browser/<id>
func instanceOf(debuggerURL string) string {
	if i := strings.LastIndex(debuggerURL, "/"); i >= 0 {
		return debuggerURL[i+1:]
	}
	return debuggerURL
}

// Close drops every session and the connection. The browser keeps running.
func (c *Client) Close() error {
	c.mu.Lock()
	c.sessions = make(map[target.ID]context.CancelFunc)
	c.contexts = make(map[target.ID]context.Context)
	c.mu.Unlock()

	if c.self != "" && c.ctx != nil {
		// only the control tab we opened gets closed
		if ectx, err := c.exec(context.Background()); err == nil {
			_ = target.CloseTarget(c.self).Do(ectx)
		}
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.logger.Info("CDP client closed")
	return nil
}

// exec binds ctx to the browser-level executor
func (c *Client) exec(ctx context.Context) (context.Context, error) {
	if c.ctx == nil {
		return nil, ErrNotConnected
	}
	b := chromedp.FromContext(c.ctx).Browser
	if b == nil {
		return nil, ErrNotConnected
	}
	return cdp.WithExecutor(ctx, b), nil
}

// resolve follows a move: moved tabs are reopened under a new id
func (c *Client) resolve(id types.TabID) types.TabID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to, ok := c.aliases[id]; ok {
		return to
	}
	return id
}

func (c *Client) alias(from, to types.TabID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[from] = to
}

// forget releases everything held for a closed target
func (c *Client) forget(id target.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for from, to := range c.aliases {
		if to == types.TabID(id) {
			delete(c.aliases, from)
		}
	}
	if cancel, ok := c.sessions[id]; ok {
		cancel()
		delete(c.sessions, id)
		delete(c.contexts, id)
	}
}

// session returns a chromedp context attached to one target
func (c *Client) session(id target.ID) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx, ok := c.contexts[id]; ok {
		return ctx
	}
	ctx, cancel := chromedp.NewContext(c.ctx, chromedp.WithTargetID(id))
	c.contexts[id] = ctx
	c.sessions[id] = cancel
	return ctx
}

func (c *Client) placement(ectx context.Context, id target.ID) (placement, error) {
	wid, bounds, err := browser.GetWindowForTarget().WithTargetID(id).Do(ectx)
	if err != nil {
		return placement{}, err
	}
	return placementOf(wid, bounds), nil
}

func (c *Client) info(ectx context.Context, id types.TabID) (*target.Info, error) {
	info, err := target.GetTargetInfo().WithTargetID(target.ID(id)).Do(ectx)
	if err != nil {
		if ectx.Err() != nil {
			return nil, ectx.Err()
		}
		return nil, fmt.Errorf("tab %s: %w", id, types.ErrTabNotFound)
	}
	if !isPage(info) {
		return nil, fmt.Errorf("tab %s is a %s target: %w", id, info.Type, types.ErrTabNotFound)
	}
	return info, nil
}
