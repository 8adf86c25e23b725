package options

import (
	"strings"
	"time"
)

// Option keys. They double as the keys of the options file.
const (
	KeyActiveComparers                  = "activeComparers"
	KeyFudgeFactors                     = "fudgeFactors"
	KeyIgnorePinnedTabs                 = "ignorePinnedTabs"
	KeyAggregateTabsFromPinned          = "aggregateTabsFromPinned"
	KeyAggregateTabsFromUnpinned        = "aggregateTabsFromUnpinned"
	KeyAggregateTabsFromMatched         = "aggregateTabsFromMatched"
	KeyAggregateTabsFromMatchedPattern  = "aggregateTabsFromMatchedPattern"
	KeyAggregateTabsMatched             = "aggregateTabsMatched"
	KeyAggregateTabsMatchedPattern      = "aggregateTabsMatchedPattern"
	KeyDoNotAggregateTabsFromMatched    = "doNotAggregateTabsFromMatched"
	KeyDoNotAggregateTabsFromMatchedPat = "doNotAggregateTabsFromMatchedPattern"
	KeyDoNotAggregateTabsMatched        = "doNotAggregateTabsMatched"
	KeyDoNotAggregateTabsMatchedPattern = "doNotAggregateTabsMatchedPattern"
	KeyAggregateTabsForBookmarked       = "aggregateTabsForBookmarked"
	KeyAggregateDuplicatedTabs          = "aggregateDuplicatedTabs"
	KeyAggregateRestoredTabs            = "aggregateRestoredTabs"
	KeyAggregateTabsFromExternals       = "aggregateTabsFromExternals"
	KeyAggregateTabsAll                 = "aggregateTabsAll"
	KeyRedirectLoadingInCurrentTab      = "redirectLoadingInCurrentTab"
	KeyRedirectMinWindowWidth           = "redirectLoadingInCurrentTabMinWindowWidth"
	KeyDelayForMultipleNewTabs          = "delayForMultipleNewTabs"
	KeyDelayForNewWindow                = "delayForNewWindow"
	KeySettleDelay                      = "settleDelay"
	KeyMaxSettleRetries                 = "maxSettleRetries"
	KeyDebug                            = "debug"
)

// Comparer names understood by the window ranking
const (
	ComparerWider    = "wider"
	ComparerTaller   = "taller"
	ComparerLarger   = "larger"
	ComparerMuchTabs = "muchTabs"
	ComparerRecent   = "recent"
)

// Options is an immutable-per-decision snapshot of the aggregation settings.
// Delays are milliseconds, as in the options file.
type Options struct {
	ActiveComparers  []string         `mapstructure:"activeComparers" json:"activeComparers"`
	FudgeFactors     map[string]int64 `mapstructure:"fudgeFactors" json:"fudgeFactors"`
	IgnorePinnedTabs bool             `mapstructure:"ignorePinnedTabs" json:"ignorePinnedTabs"`

	AggregateTabsFromPinned   bool `mapstructure:"aggregateTabsFromPinned" json:"aggregateTabsFromPinned"`
	AggregateTabsFromUnpinned bool `mapstructure:"aggregateTabsFromUnpinned" json:"aggregateTabsFromUnpinned"`

	AggregateTabsFromMatched             bool   `mapstructure:"aggregateTabsFromMatched" json:"aggregateTabsFromMatched"`
	AggregateTabsFromMatchedPattern      string `mapstructure:"aggregateTabsFromMatchedPattern" json:"aggregateTabsFromMatchedPattern"`
	DoNotAggregateTabsFromMatched        bool   `mapstructure:"doNotAggregateTabsFromMatched" json:"doNotAggregateTabsFromMatched"`
	DoNotAggregateTabsFromMatchedPattern string `mapstructure:"doNotAggregateTabsFromMatchedPattern" json:"doNotAggregateTabsFromMatchedPattern"`
	AggregateTabsMatched                 bool   `mapstructure:"aggregateTabsMatched" json:"aggregateTabsMatched"`
	AggregateTabsMatchedPattern          string `mapstructure:"aggregateTabsMatchedPattern" json:"aggregateTabsMatchedPattern"`
	DoNotAggregateTabsMatched            bool   `mapstructure:"doNotAggregateTabsMatched" json:"doNotAggregateTabsMatched"`
	DoNotAggregateTabsMatchedPattern     string `mapstructure:"doNotAggregateTabsMatchedPattern" json:"doNotAggregateTabsMatchedPattern"`

	AggregateTabsForBookmarked bool `mapstructure:"aggregateTabsForBookmarked" json:"aggregateTabsForBookmarked"`
	AggregateDuplicatedTabs    bool `mapstructure:"aggregateDuplicatedTabs" json:"aggregateDuplicatedTabs"`
	AggregateRestoredTabs      bool `mapstructure:"aggregateRestoredTabs" json:"aggregateRestoredTabs"`
	AggregateTabsFromExternals bool `mapstructure:"aggregateTabsFromExternals" json:"aggregateTabsFromExternals"`
	AggregateTabsAll           bool `mapstructure:"aggregateTabsAll" json:"aggregateTabsAll"`

	RedirectLoadingInCurrentTab               bool  `mapstructure:"redirectLoadingInCurrentTab" json:"redirectLoadingInCurrentTab"`
	RedirectLoadingInCurrentTabMinWindowWidth int64 `mapstructure:"redirectLoadingInCurrentTabMinWindowWidth" json:"redirectLoadingInCurrentTabMinWindowWidth"`

	DelayForMultipleNewTabs int `mapstructure:"delayForMultipleNewTabs" json:"delayForMultipleNewTabs"`
	DelayForNewWindow       int `mapstructure:"delayForNewWindow" json:"delayForNewWindow"`
	SettleDelay             int `mapstructure:"settleDelay" json:"settleDelay"`
	MaxSettleRetries        int `mapstructure:"maxSettleRetries" json:"maxSettleRetries"`

	Debug bool `mapstructure:"debug" json:"debug"`
}

// Defaults returns the built-in option values
func Defaults() Options {
	return Options{
		ActiveComparers: []string{ComparerWider, ComparerTaller, ComparerMuchTabs, ComparerRecent},
		FudgeFactors: map[string]int64{
			ComparerWider:    0,
			ComparerTaller:   0,
			ComparerLarger:   0,
			ComparerMuchTabs: 0,
			ComparerRecent:   0,
		},
		IgnorePinnedTabs: false,

		AggregateTabsFromPinned:   true,
		AggregateTabsFromUnpinned: true,

		AggregateTabsMatchedPattern: "^(about:newtab)",

		AggregateTabsForBookmarked: true,
		AggregateDuplicatedTabs:    false,
		AggregateRestoredTabs:      false,
		AggregateTabsFromExternals: true,
		AggregateTabsAll:           true,

		RedirectLoadingInCurrentTab:               false,
		RedirectLoadingInCurrentTabMinWindowWidth: 400,

		DelayForMultipleNewTabs: 300,
		DelayForNewWindow:       1000,
		SettleDelay:             150,
		MaxSettleRetries:        10,
	}
}

// defaultValues flattens Defaults into key/value pairs for viper
func defaultValues() map[string]interface{} {
	d := Defaults()
	fudge := make(map[string]interface{}, len(d.FudgeFactors))
	for k, v := range d.FudgeFactors {
		fudge[k] = v
	}
	return map[string]interface{}{
		KeyActiveComparers:                  d.ActiveComparers,
		KeyFudgeFactors:                     fudge,
		KeyIgnorePinnedTabs:                 d.IgnorePinnedTabs,
		KeyAggregateTabsFromPinned:          d.AggregateTabsFromPinned,
		KeyAggregateTabsFromUnpinned:        d.AggregateTabsFromUnpinned,
		KeyAggregateTabsFromMatched:         d.AggregateTabsFromMatched,
		KeyAggregateTabsFromMatchedPattern:  d.AggregateTabsFromMatchedPattern,
		KeyAggregateTabsMatched:             d.AggregateTabsMatched,
		KeyAggregateTabsMatchedPattern:      d.AggregateTabsMatchedPattern,
		KeyDoNotAggregateTabsFromMatched:    d.DoNotAggregateTabsFromMatched,
		KeyDoNotAggregateTabsFromMatchedPat: d.DoNotAggregateTabsFromMatchedPattern,
		KeyDoNotAggregateTabsMatched:        d.DoNotAggregateTabsMatched,
		KeyDoNotAggregateTabsMatchedPattern: d.DoNotAggregateTabsMatchedPattern,
		KeyAggregateTabsForBookmarked:       d.AggregateTabsForBookmarked,
		KeyAggregateDuplicatedTabs:          d.AggregateDuplicatedTabs,
		KeyAggregateRestoredTabs:            d.AggregateRestoredTabs,
		KeyAggregateTabsFromExternals:       d.AggregateTabsFromExternals,
		KeyAggregateTabsAll:                 d.AggregateTabsAll,
		KeyRedirectLoadingInCurrentTab:      d.RedirectLoadingInCurrentTab,
		KeyRedirectMinWindowWidth:           d.RedirectLoadingInCurrentTabMinWindowWidth,
		KeyDelayForMultipleNewTabs:          d.DelayForMultipleNewTabs,
		KeyDelayForNewWindow:                d.DelayForNewWindow,
		KeySettleDelay:                      d.SettleDelay,
		KeyMaxSettleRetries:                 d.MaxSettleRetries,
		KeyDebug:                            d.Debug,
	}
}

// Keys lists every known option key
func Keys() []string {
	values := defaultValues()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a deep copy so callers cannot reach the store's state
func (o Options) Clone() Options {
	c := o
	c.ActiveComparers = make([]string, len(o.ActiveComparers))
	for i, name := range o.ActiveComparers {
		c.ActiveComparers[i] = canonicalComparer(name)
	}
	c.FudgeFactors = make(map[string]int64, len(o.FudgeFactors))
	for k, v := range o.FudgeFactors {
		// viper lowercases nested keys
		c.FudgeFactors[canonicalComparer(k)] = v
	}
	return c
}

// Tolerance returns the fudge factor configured for a comparer
func (o Options) Tolerance(comparer string) int64 {
	return o.FudgeFactors[comparer]
}

// NewWindowDelay is the window in which tabs count as part of a new window
func (o Options) NewWindowDelay() time.Duration {
	return time.Duration(o.DelayForNewWindow) * time.Millisecond
}

// MultipleNewTabsDelay is the gap under which consecutive tabs form one burst
func (o Options) MultipleNewTabsDelay() time.Duration {
	return time.Duration(o.DelayForMultipleNewTabs) * time.Millisecond
}

// SettleInterval is the wait before re-reading a tab that is still being created.
// It never undercuts the burst window so the burst counter is sampled after it closes.
func (o Options) SettleInterval() time.Duration {
	d := time.Duration(o.SettleDelay) * time.Millisecond
	if burst := o.MultipleNewTabsDelay(); burst > d {
		return burst
	}
	return d
}

// RetryInterval is the wait between re-reads of a tab stuck on the blank page
func (o Options) RetryInterval() time.Duration {
	return time.Duration(o.SettleDelay) * time.Millisecond
}

func canonicalComparer(name string) string {
	for _, known := range []string{ComparerWider, ComparerTaller, ComparerLarger, ComparerMuchTabs, ComparerRecent} {
		if strings.EqualFold(name, known) {
			return known
		}
	}
	return name
}
