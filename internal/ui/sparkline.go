package ui

import (
	"slices"
	"strings"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the last width samples scaled to the largest of them.
// Fewer samples are right-aligned; missing and non-positive samples draw
// the lowest block.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(string(sparkBlocks[0]), width-len(samples)))
	if len(samples) == 0 {
		return b.String()
	}
	peak := slices.Max(samples)
	top := len(sparkBlocks) - 1
	for _, v := range samples {
		idx := 0
		if peak > 0 && v > 0 {
			idx = min(int(v/peak*float64(top)), top)
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
