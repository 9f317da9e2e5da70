package engine

// Phase is the state of a session's phase machine.
type Phase int

const (
	PhaseIdle         Phase = iota // session created, not yet running
	PhaseFirstMorning              // short opening discussion, no vote
	PhaseNight                     // night intents are collected and resolved
	PhaseDiscussion                // morning discussion
	PhaseVote                      // morning elimination vote
	PhaseEnded                     // a winner was declared
)

var phaseNames = map[Phase]string{
	PhaseIdle:         "Idle",
	PhaseFirstMorning: "FirstMorning",
	PhaseNight:        "Night",
	PhaseDiscussion:   "Discussion",
	PhaseVote:         "Vote",
	PhaseEnded:        "Ended",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "Unknown"
}
