package orchestrator

import "testing"

func TestLoopGuard_DetectsWarningThenCritical(t *testing.T) {
	g := newLoopGuard()
	args := map[string]interface{}{"q": "weather"}

	var lastLevel string
	for i := 0; i < 6; i++ {
		hash := g.record("get_weather", args)
		level, _ := g.detect("get_weather", hash)
		if level != "" {
			lastLevel = level
		}
		if i == 2 && level != "warning" {
			t.Errorf("call %d: level = %q, want warning", i+1, level)
		}
		if i == 5 && level != "critical" {
			t.Errorf("call %d: level = %q, want critical", i+1, level)
		}
	}
	if lastLevel != "critical" {
		t.Errorf("lastLevel = %q, want critical", lastLevel)
	}
}

func TestLoopGuard_DifferentArgsResetStreak(t *testing.T) {
	g := newLoopGuard()
	h1 := g.record("get_weather", map[string]interface{}{"q": "paris"})
	g.record("get_weather", map[string]interface{}{"q": "paris"})
	g.record("get_weather", map[string]interface{}{"q": "paris"})
	if level, _ := g.detect("get_weather", h1); level != "warning" {
		t.Fatalf("expected warning after 3 identical calls, got %q", level)
	}

	h2 := g.record("get_weather", map[string]interface{}{"q": "london"})
	if level, _ := g.detect("get_weather", h2); level != "" {
		t.Errorf("a different call's args should reset the streak, got level %q", level)
	}
}

func TestHashCall_StableForSameInputs(t *testing.T) {
	a := hashCall("tool", map[string]interface{}{"x": 1, "y": "z"})
	b := hashCall("tool", map[string]interface{}{"x": 1, "y": "z"})
	if a != b {
		t.Error("hashCall should be deterministic for identical name+args")
	}

	c := hashCall("tool", map[string]interface{}{"x": 2, "y": "z"})
	if a == c {
		t.Error("hashCall should differ for different args")
	}
}
