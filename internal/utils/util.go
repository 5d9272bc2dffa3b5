package utils

import "fmt"

// PrettyTime formats a duration in seconds as m:ss, or h:mm:ss past an hour.
func PrettyTime(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// PrettyTimeMS is PrettyTime for millisecond inputs, as track metadata
// reports durations.
func PrettyTimeMS(ms int) string {
	return PrettyTime(ms / 1000)
}
