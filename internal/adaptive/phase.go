package adaptive

import "time"

// SessionPhase is the coarse lifecycle stage of a tutoring session.
type SessionPhase string

const (
	PhaseStart         SessionPhase = "start"
	PhaseWorking       SessionPhase = "working"
	PhaseStuck         SessionPhase = "stuck"
	PhaseProgressCheck SessionPhase = "progress_check"
	PhaseWrapUp        SessionPhase = "wrap_up"
)

// IsValid reports whether p is a recognised session phase.
func (p SessionPhase) IsValid() bool {
	switch p {
	case PhaseStart, PhaseWorking, PhaseStuck, PhaseProgressCheck, PhaseWrapUp:
		return true
	}
	return false
}

// wrapUpAfter is the elapsed session time after which the phase is WRAP_UP.
const wrapUpAfter = 45 * time.Minute

// DeterminePhase derives the session phase from the adaptive state and the
// elapsed session time. It is a pure function: identical inputs always yield
// the identical phase. Checks apply top-down; the first match wins.
func DeterminePhase(s *State, elapsed time.Duration) SessionPhase {
	if s.MessageCount <= 4 {
		return PhaseStart
	}
	if elapsed >= wrapUpAfter {
		return PhaseWrapUp
	}
	if s.ConfusionCount >= 2 || (s.ShortReplyCount >= 3 && s.Engagement == EngagementLow) {
		return PhaseStuck
	}
	// Progress checks land near every 10-minute boundary, but not for
	// disengaged users: a check-in reads as nagging when engagement is low.
	minutes := int(elapsed.Minutes())
	if minutes >= 10 && s.Engagement != EngagementLow {
		if mod := minutes % 10; mod <= 2 || mod >= 8 {
			return PhaseProgressCheck
		}
	}
	return PhaseWorking
}
