package rollover

import (
	"fmt"
	"time"
)

// State of the live conversation thread.
type State string

const (
	StateActive     State = "ACTIVE"
	StateRolledOver State = "ROLLED_OVER"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonDayBoundary Reason = "day_boundary"
	ReasonIdle        Reason = "idle"
	ReasonFreshThread Reason = "fresh_thread"
	ReasonActive      Reason = "active"
	ReasonNoHistory   Reason = "no_history"
)

const (
	// DefaultIdleThreshold is the gap after which a conversation rolls over.
	DefaultIdleThreshold = 30 * time.Minute

	// defaultStartOffset places a missing conversation start just past the idle threshold.
	defaultStartOffset = 31 * time.Minute
)

const (
	headerDayBoundary = "This is my first conversation of the day on this interface."
	headerIdle        = "It's been more than a half hour since our last conversation on this interface."
)

// threadState is persisted between turns as state.json.
type threadState struct {
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	ConvoStartAt        *time.Time `json:"convo_start_at,omitempty"`
	RolledOverMessageAt *time.Time `json:"rolled_over_message_at,omitempty"`
}

// alreadyRolled reports whether the current last message has been archived.
func (s threadState) alreadyRolled() bool {
	return s.LastMessageAt != nil && s.RolledOverMessageAt != nil && s.LastMessageAt.Equal(*s.RolledOverMessageAt)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// evaluate applies the rollover rules in priority order. A missing
// conversation start is filled in on st.
func evaluate(st *threadState, now time.Time, loc *time.Location, idle time.Duration) (State, Reason) {
	if st.LastMessageAt == nil {
		return StateActive, ReasonNoHistory
	}
	last := *st.LastMessageAt

	if !sameDay(last, now, loc) {
		return StateRolledOver, ReasonDayBoundary
	}
	if now.Sub(last) > idle {
		return StateRolledOver, ReasonIdle
	}
	if st.ConvoStartAt == nil {
		start := last.Add(-defaultStartOffset)
		st.ConvoStartAt = &start
	}
	if last.Equal(*st.ConvoStartAt) {
		return StateActive, ReasonFreshThread
	}
	return StateActive, ReasonActive
}

// Header returns the display line for a decision, empty when there is none.
func Header(reason Reason, elapsed time.Duration) string {
	switch reason {
	case ReasonDayBoundary:
		return headerDayBoundary
	case ReasonIdle:
		return headerIdle
	case ReasonActive:
		return talkingFor(elapsed)
	default:
		return ""
	}
}

func talkingFor(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	hours := int(elapsed / time.Hour)
	minutes := int(elapsed%time.Hour) / int(time.Minute)
	if hours == 0 {
		return fmt.Sprintf("We've been talking for %d minutes.", minutes)
	}
	unit := "hour"
	if hours > 1 {
		unit = "hours"
	}
	return fmt.Sprintf("We've been talking for %d %s and %d minutes.", hours, unit, minutes)
}
