package brain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

var (
	everyNUnits   = regexp.MustCompile(`(?i)every\s+(\d+)\s*(second|sec|minute|min|hour|hr|day)s?`)
	recurringWord = regexp.MustCompile(`(?i)\b(daily|hourly|weekly|recurring|repeatedly|continuously|keep\s+buying|keep\s+selling|dca)\b`)
	onceWord      = regexp.MustCompile(`(?i)\b(once|one[-\s]?time|single(\s+trade)?)\b`)
)

var unitMs = map[string]int64{
	"second": 1000, "sec": 1000,
	"minute": 60 * 1000, "min": 60 * 1000,
	"hour": 60 * 60 * 1000, "hr": 60 * 60 * 1000,
	"day": 24 * 60 * 60 * 1000,
}

// applyCadenceFilter recognises recurring or time-windowed intents in the
// goal text and, when it finds one, overrides the decision's done/
// nextCheckMs fields with the cadence it infers. A one-shot goal is left
// alone; nothing here ever invents an action.
func applyCadenceFilter(d domain.Decision, goal string) domain.Decision {
	if onceWord.MatchString(goal) {
		return d
	}

	if m := everyNUnits.FindStringSubmatch(goal); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && n > 0 {
			if ms, ok := unitMs[strings.ToLower(m[2])]; ok {
				hint := n * ms
				d.NextCheckMs = &hint
				done := false
				d.Done = &done
				return d
			}
		}
	}

	if recurringWord.MatchString(goal) {
		done := false
		d.Done = &done
		if d.NextCheckMs == nil {
			hint := int64(60 * 60 * 1000)
			d.NextCheckMs = &hint
		}
	}

	return d
}
