package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// Events starts target discovery and returns the lifecycle feed. The
// channel is closed when ctx is done. Window focus is not reported.
func (c *Client) Events(ctx context.Context) (<-chan types.Event, error) {
	ectx, err := c.exec(ctx)
	if err != nil {
		return nil, err
	}
	windows, err := c.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	f := newFeed()
	f.seed(windows)

	raw := make(chan interface{}, 512)
	chromedp.ListenBrowser(c.ctx, func(ev interface{}) {
		switch ev.(type) {
		case *target.EventTargetCreated, *target.EventTargetDestroyed, *target.EventTargetInfoChanged:
		default:
			return
		}
		// listeners must not block the connection
		select {
		case raw <- ev:
		case <-ctx.Done():
		default:
			c.logger.Warn("Dropping browser event, feed is full")
		}
	})
	if err := target.SetDiscoverTargets(true).Do(ectx); err != nil {
		return nil, fmt.Errorf("failed to enable target discovery: %w", err)
	}

	out := make(chan types.Event, 64)
	go c.pump(ctx, f, raw, out)
	return out, nil
}

func (c *Client) pump(ctx context.Context, f *feed, raw <-chan interface{}, out chan<- types.Event) {
	defer close(out)
	ectx, err := c.exec(ctx)
	if err != nil {
		return
	}

	for {
		var ev interface{}
		select {
		case <-ctx.Done():
			return
		case ev = <-raw:
		}

		for _, e := range c.translate(ectx, f, ev) {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) translate(ectx context.Context, f *feed, ev interface{}) []types.Event {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		tab, ok := c.locate(ectx, e.TargetInfo)
		if !ok {
			return nil
		}
		return f.created(tab)
	case *target.EventTargetInfoChanged:
		tab, ok := c.locate(ectx, e.TargetInfo)
		if !ok {
			return nil
		}
		return f.changed(tab)
	case *target.EventTargetDestroyed:
		c.forget(e.TargetID)
		return f.destroyed(types.TabID(e.TargetID))
	}
	return nil
}

// locate maps a discovered page target to a tab with its window
func (c *Client) locate(ectx context.Context, info *target.Info) (types.Tab, bool) {
	if !isPage(info) || info.TargetID == c.self {
		return types.Tab{}, false
	}
	p, err := c.placement(ectx, info.TargetID)
	if err != nil {
		c.logger.Debug("Target has no window", zap.String("target_id", string(info.TargetID)), zap.Error(err))
		return types.Tab{}, false
	}
	return toTab(info, p.window, c.defaultContext), true
}
