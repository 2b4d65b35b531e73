// Package phase derives a meeting's display phase from the server record
// and wall-clock time. The server's explicit status always wins; time math
// only fills in when the server is silent.
package phase

import (
	"time"

	"meetup-app/internal/models"
)

const (
	// PreActiveGrace is how long before the scheduled start the meeting
	// already counts as active, so early arrivals see the check-in surface.
	PreActiveGrace = 15 * time.Minute
	// ActiveSpan is how long after the scheduled start the meeting stays
	// active before rolling over to completed.
	ActiveSpan = 12 * time.Hour
)

// Classify returns the derived phase for m at the given instant. It is a
// total function: missing or malformed timestamps fall through to the next
// rule, and the final fallback is recruiting so nobody is locked out by
// missing data.
func Classify(m *models.Meeting, now time.Time) models.Phase {
	if s := models.Phase(m.Status); s.Known() {
		return s
	}

	sch, okSch := m.ScheduledTime()
	rec, okRec := m.RecruitUntilTime()

	if okSch {
		activeFrom := sch.Add(-PreActiveGrace)
		activeUntil := sch.Add(ActiveSpan)
		switch {
		case !now.Before(activeFrom) && now.Before(activeUntil):
			return models.PhaseActive
		case now.Before(sch):
			if okRec && now.Before(rec) {
				return models.PhaseRecruiting
			}
			return models.PhaseReady
		default:
			return models.PhaseCompleted
		}
	}

	if okRec {
		if now.Before(rec) {
			return models.PhaseRecruiting
		}
		return models.PhaseReady
	}

	return models.PhaseRecruiting
}
