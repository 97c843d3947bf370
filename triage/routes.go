package triage

import (
	"log/slog"

	"github.com/dshills/support-triage/graph"
)

// routeMessage sends each category to its branch. Spam and anything
// unexpected end the run.
func routeMessage(s State) string {
	switch s.Category {
	case CategoryFeedback:
		return NodeProcessFeedback
	case CategorySupport:
		return NodeProcessSupport
	case CategoryOther:
		return NodeProcessOther
	default:
		return graph.End
	}
}

func routeFeedback(s State) string {
	if s.Feedback != nil && s.Feedback.IsPositive {
		return NodeFeedbackPos
	}
	return NodeFeedbackNeg
}

func routeSupport(s State) string {
	if s.Support != nil && s.Support.Type == SupportBug {
		return NodeSupportBug
	}
	return NodeSupportQuestion
}

// severityRouter routes a bug to its severity branch. Unset or unknown
// severities go to the low branch and are logged.
func severityRouter(logger *slog.Logger) graph.Router[State] {
	return func(s State) string {
		var sev Severity
		if s.Support != nil && s.Support.Bug != nil {
			sev = s.Support.Bug.Severity
		}
		switch sev {
		case SeverityHigh:
			return NodeSeverityHigh
		case SeverityMedium:
			return NodeSeverityMedium
		case SeverityLow:
			return NodeSeverityLow
		default:
			logger.Warn("unrecognized bug severity, routing to low", slog.String("severity", string(sev)))
			return NodeSeverityLow
		}
	}
}
