package attendance

import (
	"sort"
	"sync"

	"meetup-app/internal/models"
	"meetup-app/pkg/logger"
)

// Record is the append-only set of users who checked in during this
// session. The attendance subsystem is its only writer; chat gating and
// the verification surface read it through the accessor methods.
type Record struct {
	mu       sync.Mutex
	attended map[string]struct{}
}

func NewRecord() *Record {
	return &Record{attended: make(map[string]struct{})}
}

func (r *Record) MarkAttended(userID string) {
	if userID == "" {
		return
	}
	r.mu.Lock()
	r.attended[userID] = struct{}{}
	r.mu.Unlock()
}

// Merge folds a server-side attendance list into the local record.
func (r *Record) Merge(userIDs []string) {
	r.mu.Lock()
	for _, id := range userIDs {
		if id != "" {
			r.attended[id] = struct{}{}
		}
	}
	r.mu.Unlock()
}

func (r *Record) Attended(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.attended[userID]
	return ok
}

func (r *Record) snapshot() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.attended))
	for id := range r.attended {
		out[id] = struct{}{}
	}
	return out
}

// NoShowDetector freezes the absentee set at the instant the window
// closes: participants minus attendees minus the host. The set is computed
// at most once per session; late check-ins after close do not reopen it.
type NoShowDetector struct {
	mu      sync.Mutex
	frozen  bool
	noShows map[string]struct{}
}

func NewNoShowDetector() *NoShowDetector {
	return &NoShowDetector{noShows: make(map[string]struct{})}
}

// Freeze computes the no-show set once. Subsequent calls are no-ops.
func (d *NoShowDetector) Freeze(meeting *models.Meeting, record *Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return
	}
	d.frozen = true

	attended := record.snapshot()
	for _, p := range meeting.Participants {
		if p.UserID == meeting.HostID {
			continue
		}
		if _, ok := attended[p.UserID]; !ok {
			d.noShows[p.UserID] = struct{}{}
		}
	}
	logger.Info("Attendance window closed for meeting %s: %d no-show(s)", meeting.ID, len(d.noShows))
}

func (d *NoShowDetector) Frozen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frozen
}

// IsNoShow reports whether userID missed the window. Always false before
// the set is frozen.
func (d *NoShowDetector) IsNoShow(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.frozen {
		return false
	}
	_, ok := d.noShows[userID]
	return ok
}

// NoShows returns the frozen set, sorted for stable display.
func (d *NoShowDetector) NoShows() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.noShows))
	for id := range d.noShows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
