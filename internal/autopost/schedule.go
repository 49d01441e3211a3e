package autopost

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// IsTriggerTime reports whether now, read as wall-clock time in timezone, is the minute
// targetHHMM names. Unknown zones and malformed targets are never the trigger time.
func IsTriggerTime(now time.Time, timezone, targetHHMM string) bool {
	target, ok := normalizeHHMM(targetHHMM)
	if !ok {
		return false
	}
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false
	}
	return now.In(loc).Format("15:04") == target
}

func normalizeHHMM(s string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return "", false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return "", false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return "", false
	}
	return time.Date(2000, 1, 1, h, m, 0, 0, time.UTC).Format("15:04"), true
}
