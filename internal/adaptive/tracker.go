package adaptive

import (
	"strings"
	"time"

	"github.com/lessonloop/tutorcore/internal/intent"
	"github.com/lessonloop/tutorcore/internal/normalize"
)

// shortReplyWords is the word count at or below which a reply counts as short.
const shortReplyWords = 3

// Tracker mutates a session's [State] as user messages arrive and exposes the
// decision helpers consumed by the response configuration mapper.
//
// A Tracker is owned by exactly one session. Callers must serialize access
// per session; there is no internal locking.
type Tracker struct {
	state *State
	now   func() time.Time
}

// NewTracker wraps state (a fresh state if nil). The now clock defaults to
// time.Now; tests inject a deterministic clock.
func NewTracker(state *State, now func() time.Time) *Tracker {
	if state == nil {
		state = NewState()
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{state: state, now: now}
}

// State returns the tracked state for persistence or phase derivation.
func (t *Tracker) State() *State { return t.state }

// ProcessUserMessage ingests one user message and updates every rolling
// signal: counters, engagement level, preferred length, and topic tracking.
func (t *Tracker) ProcessUserMessage(text string) {
	s := t.state
	p := normalize.Process(text)

	s.MessageCount++
	s.LastMessageAt = t.now()

	isQuestion := strings.HasSuffix(strings.TrimSpace(p.Cleaned), "?") || p.HasQuestion()
	isShort := p.WordCount > 0 && p.WordCount <= shortReplyWords

	switch {
	case intent.IsConfusionSignal(text):
		s.ConfusionCount++
		s.UnderstandingConfirmed = false

	case intent.IsCompletionSignal(text):
		s.ConfusionCount = 0
		s.UnderstandingConfirmed = true

	case intent.IsEngagementSignal(text):
		// Clear engagement decays disengagement and forgives brevity.
		if s.DisengagementCount > 0 {
			s.DisengagementCount--
		}
		s.ShortReplyCount = 0

	case isShort && isQuestion:
		// A bare follow-up question is curiosity, not brevity.
		s.ShortReplyCount = 0
		s.UserAskedBack++

	case intent.IsDisengagementSignal(text):
		s.DisengagementCount++
		if isShort {
			s.ShortReplyCount++
		}

	case isShort:
		s.ShortReplyCount++
	}

	// A substantive (non-short) reply counts as answering if the assistant
	// has unanswered questions outstanding.
	if !isShort && !isQuestion && s.QuestionsAnswered < s.QuestionsAsked {
		s.QuestionsAnswered++
	}

	t.updateTopic(&p)
	t.updateEngagement()
	t.updatePreferredLength(p.WordCount)
}

// RecordAssistantQuestion notes that the assistant posed a question.
// Feeds the over-asking guard.
func (t *Tracker) RecordAssistantQuestion() {
	t.state.QuestionsAsked++
}

// updateTopic advances depth when the user stays on topic and counts switches.
func (t *Tracker) updateTopic(p *normalize.ProcessedInput) {
	s := t.state
	if len(p.Topics) == 0 {
		// No topic extracted: the message continues the current thread.
		if s.CurrentTopic != "" {
			s.TopicDepth++
		}
		return
	}
	topic := p.Topics[0]
	if topic == s.CurrentTopic {
		s.TopicDepth++
		return
	}
	if s.CurrentTopic != "" {
		s.TopicChanges++
	}
	s.CurrentTopic = topic
	s.TopicDepth = 1
}

// updateEngagement recomputes the derived engagement level.
// Low: disengagement≥3 or short-reply≥4. Medium: either ≥2. Else high.
func (t *Tracker) updateEngagement() {
	s := t.state
	switch {
	case s.DisengagementCount >= 3 || s.ShortReplyCount >= 4:
		s.Engagement = EngagementLow
	case s.DisengagementCount >= 2 || s.ShortReplyCount >= 2:
		s.Engagement = EngagementMedium
	default:
		s.Engagement = EngagementHigh
	}
}

// updatePreferredLength infers length preference from the user's own brevity.
func (t *Tracker) updatePreferredLength(wordCount int) {
	s := t.state
	switch {
	case wordCount <= 5:
		s.PreferredLength = PreferShort
	case wordCount <= 20:
		s.PreferredLength = PreferMedium
	default:
		s.PreferredLength = PreferLong
	}
}

// ShouldAskQuestion decides whether the next assistant reply should pose a
// question. Checks apply in priority order: the over-asking guard wins over
// everything, then re-engagement forcing, then suppression for confirmed
// high engagement, then confusion probing.
func (t *Tracker) ShouldAskQuestion() bool {
	s := t.state

	// Over-asking guard: don't stack a third unanswered question.
	if s.QuestionsAsked > s.QuestionsAnswered+2 {
		return false
	}
	// Low engagement with persistent short replies needs re-engagement.
	if s.Engagement == EngagementLow && s.ShortReplyCount >= 2 {
		return true
	}
	// A confirmed, engaged user doesn't need prodding.
	if s.Engagement == EngagementHigh && s.UnderstandingConfirmed {
		return false
	}
	// Sustained confusion: probe to locate the gap.
	if s.ConfusionCount >= 2 {
		return true
	}
	return false
}

// ShouldOfferVisual reports whether the session has gone deep enough on one
// topic that a visual aid is worth offering.
func (t *Tracker) ShouldOfferVisual() bool {
	s := t.state
	return s.TopicDepth >= 3 || (s.ConfusionCount >= 1 && s.TopicDepth >= 2)
}

// IsUserStuck reports whether the user shows sustained inability to progress.
func (t *Tracker) IsUserStuck() bool {
	s := t.state
	return s.ConfusionCount >= 3 || (s.ConfusionCount >= 2 && s.ShortReplyCount >= 2)
}

// ShouldCheckProgress reports whether a periodic progress check is due,
// gated so the assistant doesn't ask when it already has questions pending.
func (t *Tracker) ShouldCheckProgress() bool {
	s := t.state
	if s.MessageCount == 0 || s.MessageCount%8 != 0 {
		return false
	}
	return s.QuestionsAsked <= s.QuestionsAnswered+1
}
