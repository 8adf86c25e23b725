package policy

import (
	"context"
)

// Verdict is the tri-state accumulator folded across the rules
type Verdict int8

const (
	Undecided Verdict = iota
	Aggregate
	Keep
)

// From converts a boolean into a decided verdict
func From(aggregate bool) Verdict {
	if aggregate {
		return Aggregate
	}
	return Keep
}

// Decided reports whether a rule has set the verdict
func (v Verdict) Decided() bool {
	return v != Undecided
}

// Bool returns the decision; Undecided reads as false
func (v Verdict) Bool() bool {
	return v == Aggregate
}

func (v Verdict) String() string {
	switch v {
	case Aggregate:
		return "aggregate"
	case Keep:
		return "keep"
	default:
		return "undecided"
	}
}

// Rule evaluates one factor. It returns acc unchanged when it does not apply.
type Rule struct {
	Name string
	Eval func(ctx context.Context, acc Verdict, in Input) Verdict
}

// Step records what a single rule did during a fold
type Step struct {
	Rule   string
	Before Verdict
	After  Verdict
}

// Fold applies rules left to right. A later rule overwrites an earlier one.
func Fold(ctx context.Context, rules []Rule, in Input) (Verdict, []Step) {
	acc := Undecided
	steps := make([]Step, 0, len(rules))
	for _, r := range rules {
		next := r.Eval(ctx, acc, in)
		steps = append(steps, Step{Rule: r.Name, Before: acc, After: next})
		acc = next
	}
	return acc, steps
}

// Deciding returns the name of the last rule that changed the verdict
func Deciding(steps []Step) string {
	name := ""
	for _, s := range steps {
		if s.After != s.Before {
			name = s.Rule
		}
	}
	return name
}
