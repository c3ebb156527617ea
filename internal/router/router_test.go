package router

import (
	"testing"

	"github.com/lessonloop/tutorcore/internal/complexity"
)

func testRouter() *Router {
	return New("gpt-4o-mini", "gpt-4o")
}

func TestRouteTiers(t *testing.T) {
	t.Parallel()

	r := testRouter()

	fast := r.Route(complexity.Analysis{
		Class:       complexity.Simple,
		Length:      complexity.LengthShort,
		Tier:        complexity.TierFast,
		MaxTokens:   150,
		Temperature: 0.3,
	}, Overrides{})
	if fast.Model != "gpt-4o-mini" {
		t.Errorf("fast Model = %q, want gpt-4o-mini", fast.Model)
	}
	if fast.CostEstimate != "low" || fast.LatencyEstimate != "low" {
		t.Errorf("fast estimates = (%q, %q), want low/low", fast.CostEstimate, fast.LatencyEstimate)
	}
	if fast.LengthInstruction != "Answer in 1-3 concise sentences." {
		t.Errorf("LengthInstruction = %q", fast.LengthInstruction)
	}

	adv := r.Route(complexity.Analysis{
		Class:       complexity.Complex,
		Length:      complexity.LengthDetailed,
		Tier:        complexity.TierAdvanced,
		MaxTokens:   800,
		Temperature: 0.7,
	}, Overrides{})
	if adv.Model != "gpt-4o" {
		t.Errorf("advanced Model = %q, want gpt-4o", adv.Model)
	}
	if adv.CostEstimate != "high" || adv.LatencyEstimate != "high" {
		t.Errorf("advanced estimates = (%q, %q), want high/high", adv.CostEstimate, adv.LatencyEstimate)
	}
	if adv.MaxTokens != 800 || adv.Temperature != 0.7 {
		t.Errorf("advanced budget = (%d, %v), want (800, 0.7)", adv.MaxTokens, adv.Temperature)
	}
}

func TestRouteOverrides(t *testing.T) {
	t.Parallel()

	r := testRouter()
	a := complexity.Analysis{
		Class:     complexity.Complex,
		Length:    complexity.LengthDetailed,
		Tier:      complexity.TierAdvanced,
		MaxTokens: 800,
	}

	d := r.Route(a, Overrides{
		Model:    "o3-mini",
		Length:   complexity.LengthShort,
		TokenCap: 200,
	})
	if d.Model != "o3-mini" {
		t.Errorf("Model = %q, want override o3-mini", d.Model)
	}
	if d.MaxTokens != 200 {
		t.Errorf("MaxTokens = %d, want capped 200", d.MaxTokens)
	}
	if d.LengthInstruction != "Answer in 1-3 concise sentences." {
		t.Errorf("LengthInstruction = %q, want the short directive", d.LengthInstruction)
	}

	// A cap above the budget changes nothing.
	d = r.Route(a, Overrides{TokenCap: 2000})
	if d.MaxTokens != 800 {
		t.Errorf("MaxTokens = %d, want untouched 800", d.MaxTokens)
	}
}

func TestShouldUpgrade(t *testing.T) {
	t.Parallel()

	moderate := complexity.Analysis{Class: complexity.Moderate, Tier: complexity.TierFast}

	tests := []struct {
		name            string
		a               complexity.Analysis
		detailRequested bool
		skill, subject  string
		want            bool
	}{
		{"explicit detail request", moderate, true, "", "", true},
		{"expert on a complex subject", moderate, false, "expert", "Calculus II", true},
		{"expert on a plain subject", moderate, false, "expert", "spelling", false},
		{"beginner on a complex subject", moderate, false, "beginner", "calculus", false},
		{
			name: "already advanced",
			a:    complexity.Analysis{Class: complexity.Complex, Tier: complexity.TierAdvanced},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ShouldUpgrade(tt.a, tt.detailRequested, tt.skill, tt.subject); got != tt.want {
				t.Errorf("ShouldUpgrade() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldDowngrade(t *testing.T) {
	t.Parallel()

	moderate := complexity.Analysis{Class: complexity.Moderate, Tier: complexity.TierAdvanced}
	complexA := complexity.Analysis{Class: complexity.Complex, Tier: complexity.TierAdvanced}

	if !ShouldDowngrade(complexA, true, false) {
		t.Error("cache hit should always downgrade")
	}
	if !ShouldDowngrade(moderate, false, true) {
		t.Error("moderate follow-up should downgrade")
	}
	if ShouldDowngrade(complexA, false, true) {
		t.Error("complex follow-up should not downgrade")
	}
	if ShouldDowngrade(moderate, false, false) {
		t.Error("plain moderate query should not downgrade")
	}
}

func TestUpgradeDowngradeCopy(t *testing.T) {
	t.Parallel()

	a := complexity.Analysis{Tier: complexity.TierFast}
	up := Upgrade(a)
	if up.Tier != complexity.TierAdvanced {
		t.Errorf("Upgrade Tier = %q", up.Tier)
	}
	if a.Tier != complexity.TierFast {
		t.Error("Upgrade mutated its input")
	}

	down := Downgrade(up)
	if down.Tier != complexity.TierFast {
		t.Errorf("Downgrade Tier = %q", down.Tier)
	}
}
