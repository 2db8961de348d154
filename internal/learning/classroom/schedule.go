package classroom

import (
	"sort"
	"strings"
	"time"
)

// reviewIntervals are the gaps in days between successive reviews.
var reviewIntervals = []int{1, 6, 12, 24, 48}

// ReviewIntervals returns the review gaps for a learning pace. Fast learners
// stretch every gap by 1.25, slow learners shrink it by 0.75. Fractional
// days are truncated, never below a day.
func ReviewIntervals(pace string) []int {
	factor := 1.0
	switch strings.ToLower(strings.TrimSpace(pace)) {
	case "fast":
		factor = 1.25
	case "slow":
		factor = 0.75
	}
	out := make([]int, len(reviewIntervals))
	for i, d := range reviewIntervals {
		out[i] = max(1, int(float64(d)*factor))
	}
	return out
}

// ScheduleSpacedRepetition plans one review per topic per interval. Each
// review falls one interval after the previous one, starting at from. The
// result is ordered by due date, then by topic order.
func ScheduleSpacedRepetition(topics []string, pace string, from time.Time) []ReviewItem {
	topics = dedupe(topics)
	intervals := ReviewIntervals(pace)
	out := make([]ReviewItem, 0, len(topics)*len(intervals))
	for _, topic := range topics {
		due := from
		for rep, days := range intervals {
			due = due.AddDate(0, 0, days)
			out = append(out, ReviewItem{Topic: topic, Due: due, Interval: days, Repetition: rep + 1})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}
