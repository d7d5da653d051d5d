package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^(?:(\d+)y)?(?:(\d+)d)?(?:(\d+)h)?$`)

// parseDuration reads formats like "2y100d", "1y", "30d" or "12h". "0"
// means the token never expires.
func parseDuration(durationStr string) (time.Duration, error) {
	if durationStr == "0" {
		return 0, nil
	}

	matches := durationPattern.FindStringSubmatch(durationStr)
	if matches == nil || durationStr == "" {
		return 0, fmt.Errorf("invalid format, use formats like '2y100d', '1y', '365d', '12h' or '0'")
	}

	var totalHours int
	for i, hoursPerUnit := range []int{365 * 24, 24, 1} {
		if matches[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return 0, err
		}
		totalHours += n * hoursPerUnit
	}

	if totalHours == 0 {
		return 0, fmt.Errorf("duration must be greater than 0")
	}

	return time.Duration(totalHours) * time.Hour, nil
}
