// Package adaptive tracks rolling per-session behavioural signals (confusion,
// engagement, reply brevity, topic depth) and derives the coarse session
// phase used by the response configuration mapper.
//
// One [Tracker] exists per tutoring session and is expected to be
// read-modify-written by a single logical owner (session-id affinity); it has
// no internal locking. State snapshots round-trip losslessly through JSON so
// they can be persisted between messages via a statestore.
package adaptive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// EngagementLevel is the derived engagement bucket for a session.
type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// IsValid reports whether e is a recognised engagement level.
func (e EngagementLevel) IsValid() bool {
	switch e {
	case EngagementLow, EngagementMedium, EngagementHigh:
		return true
	}
	return false
}

// PreferredLength is the response length inferred from the user's own
// message lengths.
type PreferredLength string

const (
	PreferShort  PreferredLength = "short"
	PreferMedium PreferredLength = "medium"
	PreferLong   PreferredLength = "long"
)

// State holds the per-session rolling counters and derived signals.
// All counters are non-negative; they are reset only by explicit positive
// signals (confirmed understanding, clear engagement), never silently.
type State struct {
	// ConfusionCount counts consecutive-ish confusion signals. Reset by a
	// completion signal.
	ConfusionCount int `json:"confusion_count"`

	// ShortReplyCount counts short replies since the last engaged message.
	ShortReplyCount int `json:"short_reply_count"`

	// DisengagementCount counts disengagement signals; decays on engagement.
	DisengagementCount int `json:"disengagement_count"`

	// Engagement is recomputed on every message from the counters above.
	Engagement EngagementLevel `json:"engagement"`

	// UnderstandingConfirmed is set by completion signals and cleared by
	// confusion signals.
	UnderstandingConfirmed bool `json:"understanding_confirmed"`

	// PreferredLength is inferred from the user's message word counts.
	PreferredLength PreferredLength `json:"preferred_length"`

	// QuestionsAsked counts questions the assistant has posed.
	QuestionsAsked int `json:"questions_asked"`

	// QuestionsAnswered counts user messages that answered one of them.
	QuestionsAnswered int `json:"questions_answered"`

	// UserAskedBack counts bare follow-up questions from the user.
	UserAskedBack int `json:"user_asked_back"`

	// CurrentTopic is the most recently extracted topic phrase.
	CurrentTopic string `json:"current_topic"`

	// TopicDepth counts consecutive messages on CurrentTopic.
	TopicDepth int `json:"topic_depth"`

	// TopicChanges counts topic switches over the session.
	TopicChanges int `json:"topic_changes"`

	// LastMessageAt is the timestamp of the most recent user message.
	LastMessageAt time.Time `json:"last_message_at"`

	// MessageCount is the total number of user messages this session.
	MessageCount int `json:"message_count"`
}

// NewState returns the default state for a fresh session.
func NewState() *State {
	return &State{
		Engagement:      EngagementHigh,
		PreferredLength: PreferMedium,
	}
}

// Snapshot serializes the state to a flat JSON blob suitable for a
// statestore. Snapshot and [Restore] round-trip losslessly.
func (s *State) Snapshot() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("adaptive: snapshot: %w", err)
	}
	return data, nil
}

// Restore deserializes a snapshot produced by [State.Snapshot]. Malformed
// data degrades to a fresh default state rather than failing: a lost session
// profile costs one turn of personalization, not the turn itself.
func Restore(data []byte) *State {
	if len(data) == 0 {
		return NewState()
	}
	s := NewState()
	if err := json.Unmarshal(data, s); err != nil {
		slog.Warn("adaptive state snapshot malformed, starting fresh", "error", err)
		return NewState()
	}
	s.clampCounters()
	return s
}

// clampCounters forces all counters non-negative. Stored snapshots from
// buggy writers must not poison the invariant.
func (s *State) clampCounters() {
	for _, c := range []*int{
		&s.ConfusionCount, &s.ShortReplyCount, &s.DisengagementCount,
		&s.QuestionsAsked, &s.QuestionsAnswered, &s.UserAskedBack,
		&s.TopicDepth, &s.TopicChanges, &s.MessageCount,
	} {
		if *c < 0 {
			*c = 0
		}
	}
	if !s.Engagement.IsValid() {
		s.Engagement = EngagementHigh
	}
}
