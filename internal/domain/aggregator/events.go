package aggregator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/tracker"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

func (m *Manager) handleEvent(ctx context.Context, ev types.Event) {
	if m.metrics != nil {
		m.metrics.RecordEvent(string(ev.Type))
	}

	switch ev.Type {
	case types.EventTabCreated:
		if ev.Tab != nil {
			m.onTabCreated(ev.Tab)
		}
	case types.EventTabUpdated:
		if ev.Tab != nil {
			m.onTabUpdated(ctx, *ev.Tab, ev.Change)
		}
	case types.EventTabRemoved:
		m.onTabRemoved(ctx, ev.TabID)
	case types.EventTabAttached:
		m.session.TabMoved(ev.TabID, ev.WindowID)
	case types.EventWindowCreated:
		m.session.WindowCreated(ev.WindowID, m.clock.Now())
	case types.EventWindowRemoved:
		for _, id := range m.session.WindowRemoved(ev.WindowID) {
			m.cancel(id)
		}
		m.onWindowRemoved(ctx, ev.WindowID)
	case types.EventWindowFocusChanged:
		m.session.WindowFocused(ev.WindowID, m.clock.Now())
	default:
		m.logger.Debug("Ignoring unknown event", zap.String("type", string(ev.Type)))
	}

	m.setTracked(m.session.Stats())
}

func (m *Manager) onTabCreated(tab *types.Tab) {
	opts := m.options.Snapshot()
	info := m.session.TabCreated(*tab, m.clock.Now(), opts)
	if info.State != tracker.Creating {
		return
	}
	m.logger.Debug("Tab created",
		zap.String("tab_id", string(tab.ID)),
		zap.String("window_id", string(tab.WindowID)),
		zap.Bool("initial", info.Initial),
		zap.Bool("from_external_app", info.FromExternalApp),
	)
	m.schedule(tab.ID, opts, false)
}

func (m *Manager) onTabUpdated(ctx context.Context, tab types.Tab, change *types.TabChange) {
	switch state := m.session.State(tab.ID); {
	case state == tracker.Creating:
		if m.session.BurstOpen(tab.ID, m.clock.Now(), m.options.Snapshot()) {
			// the settle timer decides once the burst window has passed
			return
		}
		info, ok := m.session.TryUpdateSettle(tab)
		if !ok {
			return
		}
		m.cancel(tab.ID)
		m.aggregateSettled(ctx, info, tab)
	case state.Settled():
		if _, ok := m.returning[tab.ID]; ok && change != nil && change.URL != nil {
			delete(m.returning, tab.ID)
			return
		}
		if change != nil && change.URL != nil && !types.IsPlaceholderURL(*change.URL) {
			m.redirectNavigation(ctx, tab)
		}
	}
}

func (m *Manager) onTabRemoved(ctx context.Context, id types.TabID) {
	m.cancel(id)
	delete(m.returning, id)
	if !m.session.TabRemoved(id) {
		return
	}
	if m.identity == nil {
		return
	}
	if err := m.identity.Forget(ctx, id); err != nil {
		m.logger.Debug("Failed to drop identity of closed tab", zap.String("tab_id", string(id)), zap.Error(err))
	}
}

// onWindowRemoved drops the main mark of a closed window; window ids are
// reused after a browser restart
func (m *Manager) onWindowRemoved(ctx context.Context, id types.WindowID) {
	if err := m.redirect.UnmarkMain(ctx, id); err != nil {
		m.logger.Warn("Failed to clear main mark of closed window", zap.String("window_id", string(id)), zap.Error(err))
	}
}

func (m *Manager) handleTick(ctx context.Context, t tick) {
	p, ok := m.timers[t.tab]
	if !ok || p.gen != t.gen {
		return
	}
	delete(m.timers, t.tab)

	live, err := m.browser.GetTab(ctx, t.tab)
	if err != nil {
		if types.IsTransientMiss(err) {
			m.logger.Debug("Tab vanished before settling", zap.String("tab_id", string(t.tab)))
			m.session.TabRemoved(t.tab)
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		m.logger.Error("Failed to read tab", zap.String("tab_id", string(t.tab)), zap.Error(err))
		return
	}

	opts := m.options.Snapshot()
	info, res := m.session.SettleTick(live, opts)
	switch res {
	case tracker.TickSettled:
		m.aggregateSettled(ctx, info, live)
	case tracker.TickRetry:
		if m.metrics != nil {
			m.metrics.IncSettleRetries()
		}
		m.schedule(t.tab, opts, true)
	case tracker.TickGaveUp:
		if m.metrics != nil {
			m.metrics.IncSettleGiveUps()
		}
		m.logger.Debug("Tab never left the blank page, giving up", zap.String("tab_id", string(t.tab)))
	}
}
