package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// ListWindows returns every browser window holding at least one page
func (c *Client) ListWindows(ctx context.Context) ([]types.Window, error) {
	ectx, err := c.exec(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := target.GetTargets().Do(ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	placements := make(map[target.ID]placement, len(infos))
	pages := infos[:0]
	for _, info := range infos {
		if !isPage(info) || info.TargetID == c.self {
			continue
		}
		p, err := c.placement(ectx, info.TargetID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// closed while listing
			continue
		}
		placements[info.TargetID] = p
		pages = append(pages, info)
	}
	return buildWindows(pages, placements, c.defaultContext), nil
}

// GetTab returns the live state of one tab
func (c *Client) GetTab(ctx context.Context, id types.TabID) (types.Tab, error) {
	ectx, err := c.exec(ctx)
	if err != nil {
		return types.Tab{}, err
	}
	id = c.resolve(id)
	info, err := c.info(ectx, id)
	if err != nil {
		return types.Tab{}, err
	}
	p, err := c.placement(ectx, info.TargetID)
	if err != nil {
		return types.Tab{}, fmt.Errorf("tab %s: %w", id, types.ErrTabNotFound)
	}
	return toTab(info, p.window, c.defaultContext), nil
}

// MoveTab reopens the tab's page in the target window and closes the
// original. CDP cannot reparent a tab, so the index is always the end and
// the tab continues under a new id that ActivateTab and GetTab follow.
func (c *Client) MoveTab(ctx context.Context, id types.TabID, window types.WindowID, index int) error {
	ectx, err := c.exec(ctx)
	if err != nil {
		return err
	}
	info, err := c.info(ectx, c.resolve(id))
	if err != nil {
		return err
	}
	moved, err := c.openIn(ectx, window, info.URL)
	if err != nil {
		return err
	}
	if err := target.CloseTarget(info.TargetID).Do(ectx); err != nil {
		c.logger.Debug("Failed to close original of moved tab", zap.String("tab_id", string(id)), zap.Error(err))
	}
	c.alias(id, moved)

	c.logger.Debug("Reopened tab in window",
		zap.String("tab_id", string(id)),
		zap.String("new_tab_id", string(moved)),
		zap.String("window_id", string(window)),
		zap.Int("index", index),
	)
	return nil
}

// ActivateTab focuses a tab and its window
func (c *Client) ActivateTab(ctx context.Context, id types.TabID) error {
	ectx, err := c.exec(ctx)
	if err != nil {
		return err
	}
	id = c.resolve(id)
	if err := target.ActivateTarget(target.ID(id)).Do(ectx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("tab %s: %w", id, types.ErrTabNotFound)
	}
	return nil
}

// OpenTab opens url as a new tab at the end of window
func (c *Client) OpenTab(ctx context.Context, window types.WindowID, _ int, url string) (types.TabID, error) {
	ectx, err := c.exec(ctx)
	if err != nil {
		return "", err
	}
	return c.openIn(ectx, window, url)
}

// GoBack navigates a tab one step back in its history
func (c *Client) GoBack(ctx context.Context, id types.TabID) error {
	if c.ctx == nil {
		return ErrNotConnected
	}
	id = c.resolve(id)
	sess := c.session(target.ID(id))

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(sess, chromedp.NavigateBack()) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to navigate tab %s back: %w", id, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openIn opens a page in window. New targets land in the most recently
// focused window, so a tab of the target window is activated first.
func (c *Client) openIn(ectx context.Context, window types.WindowID, url string) (types.TabID, error) {
	anchor, err := c.anchor(ectx, window)
	if err != nil {
		return "", err
	}
	if err := target.ActivateTarget(anchor).Do(ectx); err != nil {
		return "", fmt.Errorf("window %s: %w", window, types.ErrWindowNotFound)
	}

	created, err := target.CreateTarget(url).WithNewWindow(false).Do(ectx)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", url, err)
	}

	if p, err := c.placement(ectx, created); err == nil && p.window != window {
		c.logger.Warn("Tab opened outside the requested window",
			zap.String("tab_id", string(created)),
			zap.String("window_id", string(window)),
			zap.String("actual_window_id", string(p.window)),
		)
	}
	return types.TabID(created), nil
}

// anchor returns some page living in window
func (c *Client) anchor(ectx context.Context, window types.WindowID) (target.ID, error) {
	infos, err := target.GetTargets().Do(ectx)
	if err != nil {
		return "", fmt.Errorf("failed to list targets: %w", err)
	}
	for _, info := range infos {
		if !isPage(info) || info.TargetID == c.self {
			continue
		}
		if p, err := c.placement(ectx, info.TargetID); err == nil && p.window == window {
			return info.TargetID, nil
		}
	}
	return "", fmt.Errorf("window %s: %w", window, types.ErrWindowNotFound)
}
