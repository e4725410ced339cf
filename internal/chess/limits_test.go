package chess

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-ChessSession/internal/chess/uci"
)

func TestBuildGoCommand(t *testing.T) {
	cases := []struct {
		limits SearchLimits
		want   []string
	}{
		{DepthLimits(20), []string{"go", "depth", "20"}},
		{SearchLimits{MoveTime: 1500 * time.Millisecond}, []string{"go", "movetime", "1500"}},
		{SearchLimits{Depth: 8, MoveTime: time.Second, Nodes: 5000}, []string{"go", "depth", "8", "movetime", "1000", "nodes", "5000"}},
	}
	for _, tc := range cases {
		got, err := BuildGoCommand(tc.limits)
		if err != nil {
			t.Fatalf("BuildGoCommand(%+v): %v", tc.limits, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("BuildGoCommand(%+v) = %v, want %v", tc.limits, got, tc.want)
		}
	}
}

func TestSearchLimitsValidate(t *testing.T) {
	bad := []SearchLimits{
		{},
		{Depth: -1},
		{Depth: maxSearchDepth + 1},
		{Depth: 5, MoveTime: -time.Second},
		{Depth: 5, Nodes: -1},
		{Depth: 5, Threads: -1},
		{Depth: 5, HashMB: -8},
	}
	for _, l := range bad {
		if err := l.Validate(); !errors.Is(err, ErrInvalidLimits) {
			t.Fatalf("%+v: expected ErrInvalidLimits, got %v", l, err)
		}
	}
	if err := DepthLimits(DefaultSearchDepth).Validate(); err != nil {
		t.Fatalf("default limits rejected: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	p, err := GetPreset("")
	if err != nil {
		t.Fatalf("GetPreset default: %v", err)
	}
	if p.Limits.Depth != DefaultSearchDepth {
		t.Fatalf("default preset depth = %d", p.Limits.Depth)
	}
	if _, err := GetPreset("Blitz"); err != nil {
		t.Fatalf("GetPreset(Blitz): %v", err)
	}
	_, err = GetPreset("nope")
	if err == nil || !strings.Contains(err.Error(), "analysis, blitz, fixed") {
		t.Fatalf("expected unknown preset error listing names, got %v", err)
	}
	for _, name := range PresetNames() {
		preset, _ := GetPreset(name)
		limits := preset.SearchLimits()
		if err := limits.Validate(); err != nil {
			t.Fatalf("preset %s invalid: %v", name, err)
		}
		if limits.Threads != preset.Threads || limits.HashMB != preset.HashMB {
			t.Fatalf("preset %s resources not carried: %+v", name, limits)
		}
	}
}

func TestPresetApply(t *testing.T) {
	analysis, _ := GetPreset("analysis")
	got := analysis.Apply(SearchLimits{Nodes: 5000, HashMB: 128})
	want := SearchLimits{Nodes: 5000, Threads: analysis.Threads, HashMB: 128}
	if got != want {
		t.Fatalf("Apply = %+v, want %+v", got, want)
	}
	// 시간/깊이 제한은 건드리지 않는다
	if got.Depth != 0 || got.MoveTime != 0 {
		t.Fatalf("Apply changed search bounds: %+v", got)
	}
}

func TestNewSearcherBackends(t *testing.T) {
	s, err := NewSearcher(EngineConfig{}, nil)
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	if _, ok := s.(*AlphaBeta); !ok {
		t.Fatalf("expected *AlphaBeta, got %T", s)
	}
	if _, err := NewSearcher(EngineConfig{Backend: BackendUCI}, nil); err == nil {
		t.Fatalf("expected error for uci without binary")
	}
	if _, err := NewSearcher(EngineConfig{Backend: "quantum"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestUCISearcherOptionsFollowLimits(t *testing.T) {
	u := &UCISearcher{defaults: uci.Options{Threads: 1, HashMB: 16, MultiPV: 1}}
	if got := u.options(DepthLimits(5)); got != u.defaults {
		t.Fatalf("limits without resources should keep defaults: %+v", got)
	}
	analysis, _ := GetPreset("analysis")
	got := u.options(analysis.SearchLimits())
	want := uci.Options{Threads: analysis.Threads, HashMB: analysis.HashMB, MultiPV: 1}
	if got != want {
		t.Fatalf("options = %+v, want %+v", got, want)
	}
}
