package ui

import (
	"fmt"
	"strings"
	"time"
)

// scale divides n by 1024 until it drops below 1024 (or maxExp is reached)
// and returns the quotient with the number of divisions.
func scale(n float64, maxExp int) (float64, int) {
	exp := 0
	for n >= 1024 && exp < maxExp {
		n /= 1024
		exp++
	}
	return n, exp
}

var rateUnits = []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s", "PB/s"}

// FormatRate formats a transfer rate with up to three significant digits.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	v, exp := scale(bytesPerSec, len(rateUnits)-1)
	switch {
	case exp == 0:
		return fmt.Sprintf("%.0f %s", v, rateUnits[exp])
	case v < 10:
		return fmt.Sprintf("%.2f %s", v, rateUnits[exp])
	case v < 100:
		return fmt.Sprintf("%.1f %s", v, rateUnits[exp])
	default:
		return fmt.Sprintf("%.0f %s", v, rateUnits[exp])
	}
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	v, exp := scale(float64(b), 6)
	return fmt.Sprintf("%.1f %ciB", v, "KMGTPE"[exp-1])
}

// FormatETA formats the time left on a download; "--" when unknown.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// FormatDuration formats a duration as "1h 02m 03s", dropping leading zero
// units.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// ProgressBar renders frac (clamped to [0,1]) as a bar width cells wide.
func ProgressBar(frac float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(min(max(frac, 0), 1) * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
