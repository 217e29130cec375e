package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askorupski/agentflow/internal/core"
)

func TestRuleMatches(t *testing.T) {
	rule := Rule{
		Category: core.ErrCatRateLimit,
		Patterns: []string{"rate limit", "429"},
	}

	assert.True(t, rule.Matches("Rate Limit exceeded for org", ""))
	assert.True(t, rule.Matches("upstream said no", "HTTP_429"))
	assert.False(t, rule.Matches("disk full", ""))
	// Patternless rules never match directly; they only serve as fallback.
	assert.False(t, Rule{Category: core.ErrCatUnknown}.Matches("anything", "ANY"))
}

func TestDefaultRulesClassification(t *testing.T) {
	classifier := NewPatternClassifier(DefaultRules())

	tests := []struct {
		message  string
		category core.ErrorCategory
		first    Strategy
	}{
		{"429 too many requests", core.ErrCatRateLimit, StrategyDefer},
		{"invalid api key provided", core.ErrCatAuth, StrategyFallback},
		{"model unavailable: sonnet", core.ErrCatModelUnavailable, StrategyFallback},
		{"prompt exceeds maximum context window", core.ErrCatContextLength, StrategyDecompose},
		{"dial tcp: i/o timeout", core.ErrCatNetwork, StrategyRetry},
		{"something exploded", core.ErrCatUnknown, StrategyRetry},
	}

	for _, tt := range tests {
		rule := classifier.Classify(errors.New(tt.message))
		assert.Equal(t, tt.category, rule.Category, "message %q", tt.message)
		require.NotEmpty(t, rule.Strategies, "message %q", tt.message)
		assert.Equal(t, tt.first, rule.Strategies[0], "message %q", tt.message)
	}
}

func TestDefaultRulesOrderBeatsOverlap(t *testing.T) {
	classifier := NewPatternClassifier(DefaultRules())

	// "rate limit" also mentions a timeout; the rate-limit rule is declared
	// first and must win.
	rule := classifier.Classify(errors.New("rate limit hit, request timeout"))
	assert.Equal(t, core.ErrCatRateLimit, rule.Category)
	assert.Equal(t, 30*time.Second, rule.Cooldown)
}

func TestPatternClassifierAppendsCatchAll(t *testing.T) {
	classifier := NewPatternClassifier([]Rule{{
		Category:   core.ErrCatNetwork,
		Patterns:   []string{"socket"},
		Strategies: []Strategy{StrategyRetry},
	}})

	rule := classifier.Classify(errors.New("no pattern matches this"))
	require.Equal(t, core.ErrCatUnknown, rule.Category)
	assert.Equal(t, []Strategy{StrategyRetry}, rule.Strategies)
}

func TestClassifyDomainErrorUsesCode(t *testing.T) {
	classifier := NewPatternClassifier([]Rule{{
		Category:   core.ErrCatAdmission,
		Patterns:   []string{"lane_at_capacity"},
		Strategies: []Strategy{StrategyDefer},
	}})

	rule := classifier.Classify(core.ErrLaneCapacity("critical"))
	assert.Equal(t, core.ErrCatAdmission, rule.Category)
}

func TestStrategyValid(t *testing.T) {
	for _, s := range []Strategy{StrategyRetry, StrategyEscalate, StrategyFallback,
		StrategyDecompose, StrategyDefer, StrategyInvestigate, StrategySkip, StrategyManual} {
		assert.True(t, s.Valid(), "strategy %s", s)
	}
	assert.False(t, Strategy("REBOOT").Valid())
}
