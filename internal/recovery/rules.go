package recovery

import (
	"strings"
	"time"

	"github.com/askorupski/agentflow/internal/core"
)

// Strategy is a remedial action chosen after a classified failure.
type Strategy string

const (
	StrategyRetry       Strategy = "RETRY"
	StrategyEscalate    Strategy = "ESCALATE"
	StrategyFallback    Strategy = "FALLBACK"
	StrategyDecompose   Strategy = "DECOMPOSE"
	StrategyDefer       Strategy = "DEFER"
	StrategyInvestigate Strategy = "INVESTIGATE"
	StrategySkip        Strategy = "SKIP"
	StrategyManual      Strategy = "MANUAL"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRetry, StrategyEscalate, StrategyFallback, StrategyDecompose,
		StrategyDefer, StrategyInvestigate, StrategySkip, StrategyManual:
		return true
	}
	return false
}

// Severity grades how serious a classified failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rule binds an error category to matching patterns and an ordered list of
// suggested strategies. Rules are evaluated in declaration order; the first
// match wins.
type Rule struct {
	Category   core.ErrorCategory
	Patterns   []string
	Strategies []Strategy
	Severity   Severity
	Cooldown   time.Duration
}

// Matches reports whether the rule's patterns match the message or code.
// Matching is case-insensitive substring containment.
func (r Rule) Matches(message, code string) bool {
	msg := strings.ToLower(message)
	c := strings.ToLower(code)
	for _, p := range r.Patterns {
		if strings.Contains(msg, p) || (c != "" && strings.Contains(c, p)) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in classification table in priority order.
// The unknown rule has no patterns and acts as the catch-all default.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category:   core.ErrCatRateLimit,
			Patterns:   []string{"rate limit", "too many requests", "429", "quota exceeded"},
			Strategies: []Strategy{StrategyDefer, StrategyRetry},
			Severity:   SeverityMedium,
			Cooldown:   30 * time.Second,
		},
		{
			Category:   core.ErrCatAuth,
			Patterns:   []string{"unauthorized", "authentication", "invalid api key", "401", "403", "permission denied"},
			Strategies: []Strategy{StrategyFallback, StrategyManual},
			Severity:   SeverityHigh,
		},
		{
			Category:   core.ErrCatModelUnavailable,
			Patterns:   []string{"model not found", "model unavailable", "overloaded", "503", "service unavailable"},
			Strategies: []Strategy{StrategyFallback, StrategyDefer},
			Severity:   SeverityMedium,
			Cooldown:   10 * time.Second,
		},
		{
			Category:   core.ErrCatContextLength,
			Patterns:   []string{"context length", "maximum context", "token limit", "too many tokens", "context_length_exceeded"},
			Strategies: []Strategy{StrategyDecompose, StrategyFallback},
			Severity:   SeverityMedium,
		},
		{
			Category: core.ErrCatNetwork,
			Patterns: []string{"connection refused", "network unreachable", "connection reset",
				"i/o timeout", "timeout", "deadline exceeded", "no route to host", "dns"},
			Strategies: []Strategy{StrategyRetry, StrategyDefer},
			Severity:   SeverityLow,
			Cooldown:   5 * time.Second,
		},
		{
			Category:   core.ErrCatUnknown,
			Strategies: []Strategy{StrategyRetry, StrategyInvestigate},
			Severity:   SeverityMedium,
		},
	}
}

// Classifier maps a raw error to a classification rule. Implementations must
// always return a rule; the catch-all category covers unmatched errors.
type Classifier interface {
	Classify(err error) Rule
}

// patternClassifier walks an ordered rule table and returns the first match.
type patternClassifier struct {
	rules []Rule
}

// NewPatternClassifier builds a classifier over an ordered rule table. The
// last rule with no patterns is the fallback; if none exists an unknown rule
// is appended.
func NewPatternClassifier(rules []Rule) Classifier {
	hasCatchAll := false
	for _, r := range rules {
		if len(r.Patterns) == 0 {
			hasCatchAll = true
		}
	}
	if !hasCatchAll {
		rules = append(rules, Rule{
			Category:   core.ErrCatUnknown,
			Strategies: []Strategy{StrategyRetry},
			Severity:   SeverityMedium,
		})
	}
	return &patternClassifier{rules: rules}
}

func (c *patternClassifier) Classify(err error) Rule {
	if err == nil {
		return c.fallback()
	}

	msg := err.Error()
	code := core.GetCode(err)
	for _, r := range c.rules {
		if len(r.Patterns) == 0 {
			continue
		}
		if r.Matches(msg, code) {
			return r
		}
	}
	return c.fallback()
}

func (c *patternClassifier) fallback() Rule {
	for _, r := range c.rules {
		if len(r.Patterns) == 0 {
			return r
		}
	}
	return Rule{Category: core.ErrCatUnknown, Strategies: []Strategy{StrategyRetry}, Severity: SeverityMedium}
}
