package policy

import (
	"strconv"
	"time"
)

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

func formatHours(d time.Duration) string {
	return strconv.Itoa(int(d/time.Hour)) + "h"
}

func formatMinutes(d time.Duration) string {
	return strconv.Itoa(int(d/time.Minute)) + " minutes"
}
