package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a human-readable size into bytes: 100, 100B, 256K,
// 256KB, 256KiB, 1M, 1G, 1T (case-insensitive, powers of 1024).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	num := strings.ToUpper(s)
	num = strings.TrimSuffix(num, "IB")
	if len(num) == len(s) {
		num = strings.TrimSuffix(num, "B")
	}

	multiplier := int64(1)
	if num != "" {
		switch num[len(num)-1] {
		case 'K':
			multiplier = 1 << 10
		case 'M':
			multiplier = 1 << 20
		case 'G':
			multiplier = 1 << 30
		case 'T':
			multiplier = 1 << 40
		}
		if multiplier > 1 {
			num = num[:len(num)-1]
		}
	}

	if num == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size: %q", s)
		}
		return n * multiplier, nil
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(multiplier)), nil
}
