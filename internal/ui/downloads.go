package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bamsammich/moma/internal/download"
)

const (
	barWidth       = 20
	sparklineWidth = 16
)

// DownloadView renders heartbeat snapshots. It remembers each download's
// rate across renders to draw a sparkline.
type DownloadView struct {
	Now func() time.Time

	history map[uint64][]float64
}

// NewDownloadView returns an empty view.
func NewDownloadView() *DownloadView {
	return &DownloadView{Now: time.Now, history: make(map[uint64][]float64)}
}

// Render returns one line per active download.
func (v *DownloadView) Render(active []download.Progress) string {
	if len(active) == 0 {
		v.history = make(map[uint64][]float64)
		return styleMuted.Render("no downloads in progress") + "\n"
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	seen := make(map[uint64]bool, len(active))
	var b strings.Builder
	for _, p := range active {
		seen[p.FileUID] = true
		rate := p.Rate()
		samples := append(v.history[p.FileUID], rate)
		if len(samples) > sparklineWidth {
			samples = samples[len(samples)-sparklineWidth:]
		}
		v.history[p.FileUID] = samples

		b.WriteString(styleHeader.Render(p.FileName))
		b.WriteByte('\n')
		b.WriteString("  ")
		if frac := p.Fraction(); frac >= 0 {
			b.WriteString(styleBarFilled.Render(ProgressBar(frac, barWidth)))
			fmt.Fprintf(&b, " %3.0f%%  %s / %s", frac*100, FormatBytes(p.ProgressBytes), FormatBytes(p.TotalBytes))
		} else {
			b.WriteString(FormatBytes(p.ProgressBytes))
		}
		fmt.Fprintf(&b, "  %s", FormatRate(rate))
		if p.TotalBytes > 0 && rate > 0 {
			remaining := float64(p.TotalBytes-p.ProgressBytes) / rate
			fmt.Fprintf(&b, "  eta %s", FormatETA(time.Duration(remaining*float64(time.Second))))
		}
		fmt.Fprintf(&b, "  %s", styleSparkline.Render(Sparkline(samples, sparklineWidth)))
		b.WriteString(styleMuted.Render(fmt.Sprintf("  updated %s ago", FormatDuration(p.Age(now)))))
		b.WriteByte('\n')
	}

	for uid := range v.history {
		if !seen[uid] {
			delete(v.history, uid)
		}
	}
	return b.String()
}
