package adaptive

import (
	"testing"
	"time"
)

func testClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestNewStateDefaults(t *testing.T) {
	t.Parallel()

	s := NewState()
	if s.Engagement != EngagementHigh {
		t.Errorf("Engagement = %q, want %q", s.Engagement, EngagementHigh)
	}
	if s.PreferredLength != PreferMedium {
		t.Errorf("PreferredLength = %q, want %q", s.PreferredLength, PreferMedium)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.ConfusionCount = 2
	s.MessageCount = 7
	s.CurrentTopic = "fractions"
	s.TopicDepth = 3
	s.UnderstandingConfirmed = true

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	got := Restore(data)
	if *got != *s {
		t.Errorf("Restore() = %+v, want %+v", got, s)
	}
}

func TestRestoreDegradesToFresh(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"malformed", []byte(`{"confusion_count": "three"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Restore(tt.data)
			if got.Engagement != EngagementHigh || got.MessageCount != 0 {
				t.Errorf("Restore(%q) = %+v, want fresh defaults", tt.data, got)
			}
		})
	}
}

func TestRestoreClampsNegativeCounters(t *testing.T) {
	t.Parallel()

	got := Restore([]byte(`{"confusion_count":-4,"message_count":-1,"engagement":"bogus"}`))
	if got.ConfusionCount != 0 || got.MessageCount != 0 {
		t.Errorf("counters = (%d, %d), want clamped to 0", got.ConfusionCount, got.MessageCount)
	}
	if got.Engagement != EngagementHigh {
		t.Errorf("Engagement = %q, want reset to %q", got.Engagement, EngagementHigh)
	}
}

func TestTrackerConfusionAndCompletion(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, testClock())

	tr.ProcessUserMessage("I don't understand this at all")
	tr.ProcessUserMessage("I'm still confused, this doesn't make sense")
	s := tr.State()
	if s.ConfusionCount != 2 {
		t.Fatalf("ConfusionCount = %d, want 2", s.ConfusionCount)
	}
	if s.UnderstandingConfirmed {
		t.Fatal("UnderstandingConfirmed = true during confusion")
	}

	tr.ProcessUserMessage("oh wait, that makes sense now")
	s = tr.State()
	if s.ConfusionCount != 0 {
		t.Errorf("ConfusionCount = %d, want reset to 0", s.ConfusionCount)
	}
	if !s.UnderstandingConfirmed {
		t.Error("UnderstandingConfirmed = false after completion signal")
	}
}

func TestTrackerEngagementDecay(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, testClock())

	// Four consecutive short replies push engagement to low.
	for _, msg := range []string{"ok", "sure", "yes", "fine"} {
		tr.ProcessUserMessage(msg)
	}
	if got := tr.State().Engagement; got != EngagementLow {
		t.Fatalf("Engagement = %q, want %q after four short replies", got, EngagementLow)
	}

	// A clear engagement signal forgives the brevity streak.
	tr.ProcessUserMessage("wow, tell me more please, this is actually quite interesting")
	if got := tr.State().Engagement; got != EngagementHigh {
		t.Errorf("Engagement = %q, want %q after engagement signal", got, EngagementHigh)
	}
	if got := tr.State().ShortReplyCount; got != 0 {
		t.Errorf("ShortReplyCount = %d, want 0", got)
	}
}

func TestTrackerShortQuestionIsCuriosity(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, testClock())
	tr.ProcessUserMessage("why though?")

	s := tr.State()
	if s.ShortReplyCount != 0 {
		t.Errorf("ShortReplyCount = %d, want 0 for a bare follow-up question", s.ShortReplyCount)
	}
	if s.UserAskedBack != 1 {
		t.Errorf("UserAskedBack = %d, want 1", s.UserAskedBack)
	}
}

func TestTrackerPreferredLength(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, testClock())

	tr.ProcessUserMessage("ok")
	if got := tr.State().PreferredLength; got != PreferShort {
		t.Errorf("PreferredLength = %q, want %q", got, PreferShort)
	}

	tr.ProcessUserMessage("could you explain the second step once more for me")
	if got := tr.State().PreferredLength; got != PreferMedium {
		t.Errorf("PreferredLength = %q, want %q", got, PreferMedium)
	}

	tr.ProcessUserMessage("so what I tried was to first factor the quadratic and then complete the square but somewhere along the way my signs flipped and now nothing checks out")
	if got := tr.State().PreferredLength; got != PreferLong {
		t.Errorf("PreferredLength = %q, want %q", got, PreferLong)
	}
}

func TestTrackerTopicDepth(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, testClock())

	tr.ProcessUserMessage("tell me about fractions")
	tr.ProcessUserMessage("tell me about fractions")
	s := tr.State()
	if s.CurrentTopic != "fractions" {
		t.Fatalf("CurrentTopic = %q, want fractions", s.CurrentTopic)
	}
	if s.TopicDepth != 2 {
		t.Errorf("TopicDepth = %d, want 2", s.TopicDepth)
	}

	// A message without a topic continues the thread.
	tr.ProcessUserMessage("and how do I simplify them step by step please")
	if got := tr.State().TopicDepth; got != 3 {
		t.Errorf("TopicDepth = %d, want 3 after continuation", got)
	}

	// Switching topics resets depth and counts the change.
	tr.ProcessUserMessage("actually tell me about decimals")
	s = tr.State()
	if s.CurrentTopic != "decimals" {
		t.Errorf("CurrentTopic = %q, want decimals", s.CurrentTopic)
	}
	if s.TopicDepth != 1 {
		t.Errorf("TopicDepth = %d, want 1 after switch", s.TopicDepth)
	}
	if s.TopicChanges != 1 {
		t.Errorf("TopicChanges = %d, want 1", s.TopicChanges)
	}
}

func TestTrackerQuestionAccounting(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, testClock())
	tr.RecordAssistantQuestion()
	tr.ProcessUserMessage("I think the answer is twelve because three times four")

	s := tr.State()
	if s.QuestionsAsked != 1 || s.QuestionsAnswered != 1 {
		t.Errorf("questions = (%d asked, %d answered), want (1, 1)", s.QuestionsAsked, s.QuestionsAnswered)
	}
}

func TestShouldAskQuestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{
			name:  "over-asking guard wins",
			state: State{QuestionsAsked: 5, QuestionsAnswered: 2, ConfusionCount: 3},
			want:  false,
		},
		{
			name:  "low engagement forces re-engagement",
			state: State{Engagement: EngagementLow, ShortReplyCount: 4},
			want:  true,
		},
		{
			name:  "confirmed high engagement suppresses",
			state: State{Engagement: EngagementHigh, UnderstandingConfirmed: true, ConfusionCount: 2},
			want:  false,
		},
		{
			name:  "sustained confusion probes",
			state: State{Engagement: EngagementMedium, ConfusionCount: 2},
			want:  true,
		},
		{
			name:  "default is quiet",
			state: State{Engagement: EngagementHigh},
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := tt.state
			tr := NewTracker(&st, testClock())
			if got := tr.ShouldAskQuestion(); got != tt.want {
				t.Errorf("ShouldAskQuestion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStuckAndVisualHelpers(t *testing.T) {
	t.Parallel()

	tr := NewTracker(&State{ConfusionCount: 3}, testClock())
	if !tr.IsUserStuck() {
		t.Error("IsUserStuck() = false with three confusion signals")
	}

	tr = NewTracker(&State{ConfusionCount: 2, ShortReplyCount: 2}, testClock())
	if !tr.IsUserStuck() {
		t.Error("IsUserStuck() = false with confusion plus brevity")
	}

	tr = NewTracker(&State{TopicDepth: 3}, testClock())
	if !tr.ShouldOfferVisual() {
		t.Error("ShouldOfferVisual() = false at depth 3")
	}

	tr = NewTracker(&State{TopicDepth: 1}, testClock())
	if tr.ShouldOfferVisual() {
		t.Error("ShouldOfferVisual() = true at depth 1")
	}
}

func TestShouldCheckProgress(t *testing.T) {
	t.Parallel()

	tr := NewTracker(&State{MessageCount: 8}, testClock())
	if !tr.ShouldCheckProgress() {
		t.Error("ShouldCheckProgress() = false at message 8")
	}

	tr = NewTracker(&State{MessageCount: 7}, testClock())
	if tr.ShouldCheckProgress() {
		t.Error("ShouldCheckProgress() = true off the cadence")
	}

	tr = NewTracker(&State{MessageCount: 8, QuestionsAsked: 4, QuestionsAnswered: 1}, testClock())
	if tr.ShouldCheckProgress() {
		t.Error("ShouldCheckProgress() = true with questions outstanding")
	}
}

func TestDeterminePhase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		state   State
		elapsed time.Duration
		want    SessionPhase
	}{
		{"first messages", State{MessageCount: 2}, time.Minute, PhaseStart},
		{"long session wraps up", State{MessageCount: 30}, 50 * time.Minute, PhaseWrapUp},
		{"confusion means stuck", State{MessageCount: 9, ConfusionCount: 2}, 5 * time.Minute, PhaseStuck},
		{
			name:    "low engagement brevity means stuck",
			state:   State{MessageCount: 9, ShortReplyCount: 3, Engagement: EngagementLow},
			elapsed: 5 * time.Minute,
			want:    PhaseStuck,
		},
		{
			name:    "ten minute boundary checks progress",
			state:   State{MessageCount: 9, Engagement: EngagementHigh},
			elapsed: 11 * time.Minute,
			want:    PhaseProgressCheck,
		},
		{
			name:    "no check-in for disengaged users",
			state:   State{MessageCount: 9, Engagement: EngagementLow},
			elapsed: 11 * time.Minute,
			want:    PhaseWorking,
		},
		{"mid-interval is working", State{MessageCount: 9}, 15 * time.Minute, PhaseWorking},
		{"steady state", State{MessageCount: 9}, 5 * time.Minute, PhaseWorking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := tt.state
			if got := DeterminePhase(&st, tt.elapsed); got != tt.want {
				t.Errorf("DeterminePhase() = %q, want %q", got, tt.want)
			}
		})
	}
}
