package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"watchdog/internal/store"
)

// Frame is one captured frame held for recording.
type Frame struct {
	JPEG      []byte
	Timestamp time.Time
}

// Trigger captures why an incident started.
type Trigger struct {
	CameraID    string
	Probability float64
	Label       string
	MotionArea  float64
	Accumulated float64
	At          time.Time
	// Frame is the JPEG that crossed the violence threshold.
	Frame []byte
}

// Listener observes incident lifecycle transitions. Callbacks run on the
// recorder's goroutine and must not block.
type Listener interface {
	IncidentStarted(id string, trig Trigger)
	IncidentFinalized(meta store.Metadata)
}

// ListenerFuncs adapts bare functions to the Listener interface. Nil fields
// are skipped.
type ListenerFuncs struct {
	Started   func(id string, trig Trigger)
	Finalized func(meta store.Metadata)
}

func (lf ListenerFuncs) IncidentStarted(id string, trig Trigger) {
	if lf.Started != nil {
		lf.Started(id, trig)
	}
}

func (lf ListenerFuncs) IncidentFinalized(meta store.Metadata) {
	if lf.Finalized != nil {
		lf.Finalized(meta)
	}
}

// newIncidentID builds a process-unique incident id from the trigger time.
func newIncidentID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("incident_%s_%s", at.UTC().Format("20060102T150405Z"), suffix)
}
