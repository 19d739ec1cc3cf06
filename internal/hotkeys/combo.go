package hotkeys

import (
	"slices"
	"strings"
)

var modifierOrder = []string{"ctrl", "alt", "shift", "cmd"}

var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"ctrl_l":  "ctrl",
	"ctrl_r":  "ctrl",
	"alt":     "alt",
	"option":  "alt",
	"alt_l":   "alt",
	"alt_r":   "alt",
	"alt_gr":  "alt",
	"shift":   "shift",
	"shift_l": "shift",
	"shift_r": "shift",
	"cmd":     "cmd",
	"super":   "cmd",
	"win":     "cmd",
	"meta":    "cmd",
}

// NormalizeCombo returns the canonical spelling of a key combo: lower case,
// modifiers first in ctrl, alt, shift, cmd order, multi-character keys in
// angle brackets ("<ctrl>+<shift>+<f5>"). An empty or blank combo returns "".
func NormalizeCombo(combo string) string {
	combo = strings.ToLower(strings.TrimSpace(combo))
	if combo == "" {
		return ""
	}
	mods := map[string]bool{}
	var keys []string
	for _, part := range strings.Split(combo, "+") {
		token := strings.Trim(strings.TrimSpace(part), "<>")
		if token == "" {
			continue
		}
		if mod, ok := modifierAliases[token]; ok {
			mods[mod] = true
			continue
		}
		if !slices.Contains(keys, token) {
			keys = append(keys, token)
		}
	}

	parts := make([]string, 0, len(mods)+len(keys))
	for _, mod := range modifierOrder {
		if mods[mod] {
			parts = append(parts, "<"+mod+">")
		}
	}
	for _, key := range keys {
		if len([]rune(key)) > 1 {
			key = "<" + key + ">"
		}
		parts = append(parts, key)
	}
	return strings.Join(parts, "+")
}
