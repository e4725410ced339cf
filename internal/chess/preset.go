package chess

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SearchPreset bundles limits with the engine resources a search expects.
type SearchPreset struct {
	Name    string
	Limits  SearchLimits
	Threads int
	HashMB  int
}

const defaultThreads = 1

var presets = map[string]SearchPreset{
	"fixed": {
		Name:    "fixed",
		Limits:  SearchLimits{Depth: DefaultSearchDepth},
		Threads: defaultThreads,
		HashMB:  16,
	},
	"blitz": {
		Name:    "blitz",
		Limits:  SearchLimits{Depth: 8, MoveTime: 500 * time.Millisecond},
		Threads: defaultThreads,
		HashMB:  16,
	},
	"analysis": {
		Name:    "analysis",
		Limits:  SearchLimits{Depth: 30, MoveTime: 10 * time.Second},
		Threads: 2,
		HashMB:  64,
	},
}

func GetPreset(name string) (SearchPreset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || key == "default" {
		key = "fixed"
	}
	if p, ok := presets[key]; ok {
		return p, nil
	}
	return SearchPreset{}, fmt.Errorf("unknown search preset: %s (known: %s)", name, strings.Join(PresetNames(), ", "))
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SearchLimits returns the preset limits carrying its engine resources.
func (p SearchPreset) SearchLimits() SearchLimits {
	return p.Apply(p.Limits)
}

// Apply fills the resource fields l leaves unset with the preset's.
func (p SearchPreset) Apply(l SearchLimits) SearchLimits {
	if l.Threads == 0 {
		l.Threads = p.Threads
	}
	if l.HashMB == 0 {
		l.HashMB = p.HashMB
	}
	return l
}
