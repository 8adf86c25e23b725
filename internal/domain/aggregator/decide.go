package aggregator

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/policy"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/redirect"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/tracker"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// Decision flows
const (
	FlowCreated    = "created"
	FlowNavigation = "navigation"
)

// Reasons a decision ended; policy keeps use the deciding rule name
const (
	ReasonInitial  = "initial"
	ReasonBurst    = "burst"
	ReasonNoTarget = "no_target"
	ReasonVanished = "vanished"
	ReasonError    = "error"
	ReasonMoved    = "moved"
	ReasonOpened   = "opened"
	ReasonWide     = "wide_enough"
)

type decision struct {
	span   *tracing.Span
	timer  *monitoring.Timer
	logger *logging.Logger
}

// aggregateSettled decides for a tab that just left the creating state and
// moves it into the main window when it should go there.
func (m *Manager) aggregateSettled(ctx context.Context, info tracker.TabInfo, tab types.Tab) {
	ctx, d := m.begin(ctx, FlowCreated, tab)
	opts := m.options.Snapshot()

	moved, reason := m.decideCreated(ctx, d, info, tab, opts)
	m.finish(d, moved, reason)
}

func (m *Manager) decideCreated(ctx context.Context, d *decision, info tracker.TabInfo, tab types.Tab, opts options.Options) (bool, string) {
	if info.Initial {
		return false, ReasonInitial
	}
	if m.session.Suppressed(tab.ID, opts) {
		if m.metrics != nil {
			m.metrics.IncBurstSuppressions()
		}
		return false, ReasonBurst
	}

	opener := m.opener(ctx, tab)
	m.inheritIdentity(ctx, d, tab, opener)

	verdict := m.evaluate(ctx, tab, opener, info.FromExternalApp, opts)
	d.span.SetTag("rule", verdict.Rule)
	if !verdict.Aggregate {
		return false, verdict.Rule
	}

	target, err := m.redirect.Resolve(ctx, tab, redirect.Options{
		ExcludeLastTab: true,
		Ranking:        m.rankOptions(opts),
	})
	if err != nil {
		return false, m.failure(d, "resolve", err)
	}
	if target == nil {
		return false, ReasonNoTarget
	}
	d.span.SetTag("target_window", string(target.ID))

	if err := m.controller.MoveTab(ctx, tab.ID, target.ID, len(target.Tabs)); err != nil {
		if m.metrics != nil {
			m.metrics.RecordMove("error")
		}
		return false, m.failure(d, "move", err)
	}
	if m.metrics != nil {
		m.metrics.RecordMove("success")
	}
	if err := m.controller.ActivateTab(ctx, tab.ID); err != nil {
		d.logger.Debug("Failed to activate moved tab", zap.Error(err))
	}
	d.logger.Info("Moved tab into main window",
		zap.String("from_window", string(tab.WindowID)),
		zap.String("to_window", string(target.ID)),
	)
	return true, ReasonMoved
}

// redirectNavigation reopens a navigation of a settled tab in the main
// window when the tab sits in a window too narrow to browse in.
func (m *Manager) redirectNavigation(ctx context.Context, tab types.Tab) {
	opts := m.options.Snapshot()
	if !opts.RedirectLoadingInCurrentTab {
		return
	}

	ctx, d := m.begin(ctx, FlowNavigation, tab)
	opened, reason := m.decideNavigation(ctx, d, tab, opts)
	m.finish(d, opened, reason)
}

func (m *Manager) decideNavigation(ctx context.Context, d *decision, tab types.Tab, opts options.Options) (bool, string) {
	windows, err := m.browser.ListWindows(ctx)
	if err != nil {
		return false, m.failure(d, "list", err)
	}
	source, ok := types.FindWindow(windows, tab.WindowID)
	if !ok {
		return false, ReasonVanished
	}
	if source.Width >= opts.RedirectLoadingInCurrentTabMinWindowWidth {
		return false, ReasonWide
	}

	info, _ := m.session.Tab(tab.ID)
	verdict := m.evaluate(ctx, tab, m.opener(ctx, tab), info.FromExternalApp, opts)
	d.span.SetTag("rule", verdict.Rule)
	if !verdict.Aggregate {
		return false, verdict.Rule
	}

	target, err := m.redirect.Resolve(ctx, tab, redirect.Options{
		ExcludeLastTab: false,
		Ranking:        m.rankOptions(opts),
	})
	if err != nil {
		return false, m.failure(d, "resolve", err)
	}
	if target == nil {
		return false, ReasonNoTarget
	}
	d.span.SetTag("target_window", string(target.ID))

	opened, err := m.controller.OpenTab(ctx, target.ID, len(target.Tabs), tab.URL)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordRedirect("error")
		}
		return false, m.failure(d, "open", err)
	}
	if m.metrics != nil {
		m.metrics.RecordRedirect("success")
	}
	if err := m.controller.ActivateTab(ctx, opened); err != nil {
		d.logger.Debug("Failed to activate reopened tab", zap.Error(err))
	}
	if nav, ok := m.controller.(Navigator); ok {
		if err := nav.GoBack(ctx, tab.ID); err != nil {
			d.logger.Debug("Failed to navigate source tab back", zap.Error(err))
		} else {
			m.returning[tab.ID] = struct{}{}
		}
	}
	d.logger.Info("Reopened navigation in main window",
		zap.String("url", tab.URL),
		zap.String("to_window", string(target.ID)),
		zap.String("opened_tab_id", string(opened)),
	)
	return true, ReasonOpened
}

func (m *Manager) evaluate(ctx context.Context, tab types.Tab, opener *types.Tab, fromExternal bool, opts options.Options) policy.Decision {
	return m.policy.Evaluate(ctx, tab, policy.Context{
		Opener:          opener,
		FromExternalApp: fromExternal,
		Live:            m.session.HasTab,
	}, opts)
}

// inheritIdentity hands the opener's identity to a tab that opened on the
// opener's page. That is how a duplicated tab looks over DevTools, where
// session values are not copied.
func (m *Manager) inheritIdentity(ctx context.Context, d *decision, tab types.Tab, opener *types.Tab) {
	if m.identity == nil || opener == nil || opener.URL != tab.URL || types.IsPlaceholderURL(tab.URL) {
		return
	}
	inherited, err := m.identity.Inherit(ctx, opener.ID, tab.ID)
	if err != nil {
		d.logger.Debug("Failed to inherit opener identity", zap.Error(err))
		return
	}
	if inherited {
		d.logger.Debug("Tab opened on its opener's page", zap.String("opener_tab_id", string(opener.ID)))
	}
}

// opener returns the live opener tab; a closed opener reads as none
func (m *Manager) opener(ctx context.Context, tab types.Tab) *types.Tab {
	if !tab.HasOpener() {
		return nil
	}
	opener, err := m.browser.GetTab(ctx, *tab.OpenerTabID)
	if err != nil {
		if !types.IsTransientMiss(err) {
			m.logger.Debug("Failed to read opener", zap.String("tab_id", string(tab.ID)), zap.Error(err))
		}
		return nil
	}
	return &opener
}

// failure abandons a decision. Transient misses are expected races.
func (m *Manager) failure(d *decision, step string, err error) string {
	if types.IsTransientMiss(err) {
		d.logger.Debug("Decision abandoned, tab or window vanished", zap.String("step", step))
		return ReasonVanished
	}
	d.span.SetError(err)
	d.logger.Error("Decision failed", zap.String("step", step), zap.Error(err))
	return ReasonError
}

func (m *Manager) begin(ctx context.Context, flow string, tab types.Tab) (context.Context, *decision) {
	var span *tracing.Span
	if m.tracer != nil {
		span, ctx = m.tracer.StartSpan(ctx, flow)
	} else {
		span = &tracing.Span{TraceID: tracing.NewTraceID(), Name: flow, Tags: map[string]string{}}
	}
	span.SetTag("tab_id", string(tab.ID))

	return ctx, &decision{
		span:  span,
		timer: monitoring.NewTimer(m.metrics, flow),
		logger: m.logger.With(
			zap.String("decision_id", string(span.TraceID)),
			zap.String("flow", flow),
			zap.String("tab_id", string(tab.ID)),
		),
	}
}

func (m *Manager) finish(d *decision, acted bool, reason string) {
	d.timer.Stop()
	if m.metrics != nil {
		m.metrics.RecordDecision(acted, reason)
	}
	d.span.SetTag("reason", reason)
	d.logger.Debug("Decision finished", zap.Bool("acted", acted), zap.String("reason", reason))
	if m.tracer != nil {
		d.span.Finish()
		m.tracer.Submit(d.span)
	}
}
