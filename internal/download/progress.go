package download

import (
	"time"
)

// Progress is the heartbeat record of an in-flight download, stored at
// cache/tracking/<file_uid>.json. Times are Unix seconds.
type Progress struct {
	FileUID       uint64 `json:"-"`
	FileName      string `json:"file_name"`
	ProgressBytes int64  `json:"progress_bytes"`
	TotalBytes    int64  `json:"total_bytes"`
	StartedAt     int64  `json:"started_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Age is how long ago the heartbeat was last written.
func (p Progress) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(p.UpdatedAt, 0))
}

// Fraction returns completed/total in [0, 1], or -1 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return -1
	}
	f := float64(p.ProgressBytes) / float64(p.TotalBytes)
	return min(f, 1)
}

// Rate is the average throughput since the download started, in bytes/sec.
func (p Progress) Rate() float64 {
	elapsed := p.UpdatedAt - p.StartedAt
	if elapsed <= 0 {
		return 0
	}
	return float64(p.ProgressBytes) / float64(elapsed)
}
