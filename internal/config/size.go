package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a human-readable size string into bytes.
// Accepts a plain number or one with a B/K/M/G/T suffix (case-insensitive,
// powers of 1024).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	num, shift := s, 0
	switch strings.ToUpper(s[len(s)-1:]) {
	case "B":
		num = s[:len(s)-1]
	case "K":
		num, shift = s[:len(s)-1], 10
	case "M":
		num, shift = s[:len(s)-1], 20
	case "G":
		num, shift = s[:len(s)-1], 30
	case "T":
		num, shift = s[:len(s)-1], 40
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid size: %q", s)
		}
		return n << shift, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(int64(1)<<shift)), nil
}
