package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseBucket accepts Go durations ("15m", "1h") plus a day suffix ("1d").
func ParseBucket(bucket string) (time.Duration, error) {
	b := strings.TrimSpace(strings.ToLower(bucket))
	if b == "" {
		return time.Hour, nil
	}
	if strings.HasSuffix(b, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(b, "d"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid bucket %q", bucket)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(b)
	if err != nil || d < time.Second {
		return 0, fmt.Errorf("invalid bucket %q", bucket)
	}
	return d, nil
}
