package policy

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/identity"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/pattern"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// Rule names, in evaluation order
const (
	RuleOpener              = "opener"
	RuleOpenerAllow         = "opener_allow"
	RuleOpenerDeny          = "opener_deny"
	RuleTabAllow            = "tab_allow"
	RuleTabDeny             = "tab_deny"
	RuleBookmarked          = "bookmarked"
	RuleExternalApp         = "external_app"
	RuleDuplicateOrRestored = "duplicate_or_restored"
	RuleDefault             = "default"
)

// Bookmarks answers whether a URL is bookmarked
type Bookmarks interface {
	IsBookmarked(ctx context.Context, url string) (bool, error)
}

// IdentityResolver resolves the persistent identity of a tab
type IdentityResolver interface {
	Resolve(ctx context.Context, tab types.TabID, live identity.LiveFunc) (identity.Result, error)
}

// FailureRecorder counts lookups that failed and were treated as negative
type FailureRecorder interface {
	IncLookupFailures(kind string)
}

// Context carries the facts about a tab the caller already knows
type Context struct {
	Opener *types.Tab
	// Bookmarked is looked up through Bookmarks when nil
	Bookmarked      *bool
	FromExternalApp bool
	// Live reports which volatile tab ids exist, for duplicate detection
	Live identity.LiveFunc
}

// Input is everything a rule sees
type Input struct {
	Tab     types.Tab
	Context Context
	Options options.Options
}

// Decision is the outcome of evaluating the policy
type Decision struct {
	Aggregate bool
	Verdict   Verdict
	Rule      string
	Steps     []Step
}

// Policy decides whether a tab should move into the main window
type Policy struct {
	patterns  *pattern.Set
	identity  IdentityResolver
	bookmarks Bookmarks
	failures  FailureRecorder
	logger    *logging.Logger
}

// New creates a policy. identity and bookmarks may be nil.
func New(patterns *pattern.Set, ids IdentityResolver, bookmarks Bookmarks, logger *logging.Logger) *Policy {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Policy{
		patterns:  patterns,
		identity:  ids,
		bookmarks: bookmarks,
		logger:    logger,
	}
}

// WithFailures adds lookup failure counting
func (p *Policy) WithFailures(f FailureRecorder) *Policy {
	p.failures = f
	return p
}

// ShouldAggregate reports whether tab should be aggregated
func (p *Policy) ShouldAggregate(ctx context.Context, tab types.Tab, c Context, opts options.Options) bool {
	return p.Evaluate(ctx, tab, c, opts).Aggregate
}

// Evaluate folds the rules over tab and keeps the trace
func (p *Policy) Evaluate(ctx context.Context, tab types.Tab, c Context, opts options.Options) Decision {
	verdict, steps := Fold(ctx, p.Rules(), Input{Tab: tab, Context: c, Options: opts})
	d := Decision{
		Aggregate: verdict.Bool(),
		Verdict:   verdict,
		Rule:      Deciding(steps),
		Steps:     steps,
	}
	if ce := p.logger.Check(zap.DebugLevel, "Policy evaluated"); ce != nil {
		fields := []zap.Field{
			zap.String("tab_id", string(tab.ID)),
			zap.Bool("aggregate", d.Aggregate),
			zap.String("rule", d.Rule),
		}
		for _, s := range steps {
			fields = append(fields, zap.String("rule_"+s.Rule, s.After.String()))
		}
		ce.Write(fields...)
	}
	return d
}

// Rules returns the rule list in evaluation order
func (p *Policy) Rules() []Rule {
	return []Rule{
		{Name: RuleOpener, Eval: openerRule},
		{Name: RuleOpenerAllow, Eval: p.openerAllowRule},
		{Name: RuleOpenerDeny, Eval: p.openerDenyRule},
		{Name: RuleTabAllow, Eval: p.tabAllowRule},
		{Name: RuleTabDeny, Eval: p.tabDenyRule},
		{Name: RuleBookmarked, Eval: p.bookmarkedRule},
		{Name: RuleExternalApp, Eval: externalAppRule},
		{Name: RuleDuplicateOrRestored, Eval: p.duplicateRule},
		{Name: RuleDefault, Eval: defaultRule},
	}
}

func openerRule(_ context.Context, acc Verdict, in Input) Verdict {
	opener := in.Context.Opener
	if opener == nil {
		return acc
	}
	if opener.Pinned {
		return From(in.Options.AggregateTabsFromPinned)
	}
	return From(in.Options.AggregateTabsFromUnpinned)
}

func (p *Policy) openerAllowRule(_ context.Context, acc Verdict, in Input) Verdict {
	if in.Context.Opener == nil || !in.Options.AggregateTabsFromMatched {
		return acc
	}
	if matches(p.patterns, func(s *pattern.Set) *pattern.Cache { return s.OpenerAllow }, in.Context.Opener.URL) {
		return Aggregate
	}
	return acc
}

func (p *Policy) openerDenyRule(_ context.Context, acc Verdict, in Input) Verdict {
	if in.Context.Opener == nil || !in.Options.DoNotAggregateTabsFromMatched {
		return acc
	}
	if matches(p.patterns, func(s *pattern.Set) *pattern.Cache { return s.OpenerDeny }, in.Context.Opener.URL) {
		return Keep
	}
	return acc
}

func (p *Policy) tabAllowRule(_ context.Context, acc Verdict, in Input) Verdict {
	if !in.Options.AggregateTabsMatched {
		return acc
	}
	if matches(p.patterns, func(s *pattern.Set) *pattern.Cache { return s.TabAllow }, in.Tab.URL) {
		return Aggregate
	}
	return acc
}

func (p *Policy) tabDenyRule(_ context.Context, acc Verdict, in Input) Verdict {
	if !in.Options.DoNotAggregateTabsMatched {
		return acc
	}
	if matches(p.patterns, func(s *pattern.Set) *pattern.Cache { return s.TabDeny }, in.Tab.URL) {
		return Keep
	}
	return acc
}

// bookmarkedRule sets the configured value rather than forcing true
func (p *Policy) bookmarkedRule(ctx context.Context, acc Verdict, in Input) Verdict {
	if !p.isBookmarked(ctx, in) {
		return acc
	}
	return From(in.Options.AggregateTabsForBookmarked)
}

func externalAppRule(_ context.Context, acc Verdict, in Input) Verdict {
	if in.Context.FromExternalApp && in.Options.AggregateTabsFromExternals {
		return Aggregate
	}
	return acc
}

// duplicateRule only ever demotes. Resolving the identity may mint a record.
func (p *Policy) duplicateRule(ctx context.Context, acc Verdict, in Input) Verdict {
	if acc != Aggregate || p.identity == nil {
		return acc
	}
	if in.Options.AggregateDuplicatedTabs && in.Options.AggregateRestoredTabs {
		return acc
	}
	res, err := p.identity.Resolve(ctx, in.Tab.ID, in.Context.Live)
	if err != nil {
		p.logger.Debug("Identity lookup failed, treating as new tab",
			zap.String("tab_id", string(in.Tab.ID)), zap.Error(err))
		p.recordFailure("identity")
		return acc
	}
	if res.Duplicated && !in.Options.AggregateDuplicatedTabs {
		return Keep
	}
	if res.Restored && !in.Options.AggregateRestoredTabs {
		return Keep
	}
	return acc
}

func defaultRule(_ context.Context, acc Verdict, in Input) Verdict {
	if acc.Decided() {
		return acc
	}
	return From(in.Options.AggregateTabsAll)
}

func (p *Policy) isBookmarked(ctx context.Context, in Input) bool {
	if in.Context.Bookmarked != nil {
		return *in.Context.Bookmarked
	}
	if p.bookmarks == nil || types.IsPlaceholderURL(in.Tab.URL) {
		return false
	}
	ok, err := p.bookmarks.IsBookmarked(ctx, in.Tab.URL)
	if err != nil {
		p.logger.Debug("Bookmark lookup failed, treating as not bookmarked",
			zap.String("tab_id", string(in.Tab.ID)), zap.Error(err))
		p.recordFailure("bookmark")
		return false
	}
	return ok
}

func (p *Policy) recordFailure(kind string) {
	if p.failures != nil {
		p.failures.IncLookupFailures(kind)
	}
}

func matches(set *pattern.Set, pick func(*pattern.Set) *pattern.Cache, url string) bool {
	if set == nil {
		return false
	}
	c := pick(set)
	if c == nil {
		return false
	}
	return c.Matcher().MatchString(url)
}
