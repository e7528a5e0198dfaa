package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{
			name: "identical strings",
			a:    "risk management plan",
			b:    "risk management plan",
			min:  1.0,
			max:  1.0,
		},
		{
			name: "case and whitespace folded",
			a:    "Risk  Management\tPlan",
			b:    "risk management plan",
			min:  1.0,
			max:  1.0,
		},
		{
			name: "single typo stays high",
			a:    "risk managment plan",
			b:    "risk management plan",
			min:  0.9,
			max:  1.0,
		},
		{
			name: "unrelated strings stay low",
			a:    "risk management plan",
			b:    "quarterly sales forecast",
			min:  0.0,
			max:  0.5,
		},
		{
			name: "both empty",
			a:    "",
			b:    "",
			min:  1.0,
			max:  1.0,
		},
		{
			name: "one empty",
			a:    "risk",
			b:    "",
			min:  0.0,
			max:  0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Ratio(tt.a, tt.b)
			assert.GreaterOrEqual(t, r, tt.min)
			assert.LessOrEqual(t, r, tt.max)
		})
	}
}

func TestBestSpan(t *testing.T) {
	text := "The manufacturer shall establish a risk management plan that is maintained throughout the lifecycle."

	t.Run("exact quote scores 1.0", func(t *testing.T) {
		m := BestSpan("risk management plan", text)
		assert.Equal(t, "risk management plan", m.Span)
		assert.InDelta(t, 1.0, m.Ratio, 0.001)
	})

	t.Run("typo repaired to source text", func(t *testing.T) {
		m := BestSpan("risk managment plan", text)
		assert.Equal(t, "risk management plan", m.Span)
		assert.GreaterOrEqual(t, m.Ratio, 0.8)
	})

	t.Run("unrelated quote stays below threshold", func(t *testing.T) {
		m := BestSpan("annual financial audit report", text)
		assert.Less(t, m.Ratio, 0.8)
	})

	t.Run("empty quote matches nothing", func(t *testing.T) {
		m := BestSpan("", text)
		assert.Zero(t, m.Ratio)
		assert.Empty(t, m.Span)
	})

	t.Run("empty text matches nothing", func(t *testing.T) {
		m := BestSpan("risk management plan", "   ")
		assert.Zero(t, m.Ratio)
	})
}

func TestBestSpanPrefersClosestLength(t *testing.T) {
	text := "Section 4.1 requires a risk management plan covering production and post-production activities."

	m := BestSpan("a risk management plan covering production", text)
	assert.Equal(t, "a risk management plan covering production", m.Span)
	assert.InDelta(t, 1.0, m.Ratio, 0.001)
}
