package solutions

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of an Issue
type State string

const (
	// StateOpen is the initial state: the problem was detected, nothing was changed
	StateOpen State = "open"
	// StateSolved means the fix was applied and verified
	StateSolved State = "solved"
	// StateDismissed means the operator chose to ignore the issue
	StateDismissed State = "dismissed"
)

// IsValid checks if the state value is valid
func (s State) IsValid() bool {
	switch s {
	case StateOpen, StateSolved, StateDismissed:
		return true
	}
	return false
}

// Severity classifies an Issue for presentation ordering only.
type Severity int

const (
	SeveritySuggestion Severity = iota
	SeverityRecommendation
	SeverityFundamental
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuggestion:
		return "Suggestion"
	case SeverityRecommendation:
		return "Recommendation"
	case SeverityFundamental:
		return "Fundamental"
	case SeverityError:
		return "Error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Milestone is a staged setup checklist phase. Milestones are ordered; the
// operator works through them front to back.
type Milestone int

const (
	MilestoneWelcome Milestone = iota
	MilestoneConnect
	MilestoneBasics
	MilestoneKinematics
	MilestoneVision
	MilestoneProduction
	MilestoneAdvanced
)

var milestoneNames = []string{
	"welcome",
	"connect",
	"basics",
	"kinematics",
	"vision",
	"production",
	"advanced",
}

func (m Milestone) String() string {
	if m < 0 || int(m) >= len(milestoneNames) {
		return fmt.Sprintf("milestone(%d)", int(m))
	}
	return milestoneNames[m]
}

// Milestones returns all milestones in order.
func Milestones() []Milestone {
	ms := make([]Milestone, len(milestoneNames))
	for i := range milestoneNames {
		ms[i] = Milestone(i)
	}
	return ms
}

// ParseMilestone parses a milestone name, case-insensitively.
func ParseMilestone(name string) (Milestone, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range milestoneNames {
		if n == name {
			return Milestone(i), nil
		}
	}
	return 0, fmt.Errorf("unknown milestone %q (valid: %s)", name, strings.Join(milestoneNames, ", "))
}
