package pipeline

import "time"

// State is where a frame is in its cycle.
type State int32

const (
	StateIdle State = iota
	StateCaptured
	StateOriented
	StateDetected
	StateAnnotated
	StateProcessed
	StatePublished
	StateDropped
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateCaptured:  "captured",
	StateOriented:  "oriented",
	StateDetected:  "detected",
	StateAnnotated: "annotated",
	StateProcessed: "processed",
	StatePublished: "published",
	StateDropped:   "dropped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Timing holds per-stage durations of the last completed cycle.
type Timing struct {
	Orient   time.Duration
	Detect   time.Duration
	Annotate time.Duration
	Process  time.Duration
	Total    time.Duration
}

// Stats are lifetime counters of a Controller.
type Stats struct {
	// Offered counts frames handed to Offer.
	Offered uint64
	// Dropped counts frames discarded because another frame was pending
	// or in flight, or was still pending at Stop.
	Dropped uint64
	// Published counts cycles that reached the sink.
	Published uint64
	// Aborted counts cycles that ended in StateDropped.
	Aborted uint64
	// DetectionFailures counts cycles that continued without landmarks
	// because of ErrDetectionFailure.
	DetectionFailures uint64
}
