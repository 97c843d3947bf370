package triage

import (
	"github.com/dshills/support-triage/graph"
)

// NewGraph builds the triage workflow:
//
//	process-message  -Feedback->  process-feedback  -> feedback-positive | feedback-negative
//	                 -Support->   process-support   -> support-bug -> bug-severity-{high,medium,low}
//	                                                -> support-question
//	                 -Other->     process-other     -> End
//	                 -Spam->      End
//
// Every feedback, severity and question branch continues to
// compose-response, which ends the run.
func NewGraph(d Deps) (*graph.Graph[State], error) {
	n, err := newNodes(d)
	if err != nil {
		return nil, err
	}

	var classifyOpts []graph.NodeOpt
	if d.ClassifyPolicy != nil {
		classifyOpts = append(classifyOpts, graph.WithNodePolicy(*d.ClassifyPolicy))
	}

	b := graph.NewBuilder[State](Merge)

	b.AddNode(NodeProcessMessage, graph.NodeFunc[State](n.processMessage), classifyOpts...)
	b.AddNode(NodeProcessFeedback, graph.NodeFunc[State](n.processFeedback), classifyOpts...)
	b.AddNode(NodeProcessSupport, graph.NodeFunc[State](n.processSupport), classifyOpts...)
	b.AddNode(NodeSupportBug, graph.NodeFunc[State](n.supportBug), classifyOpts...)
	b.AddNode(NodeSupportQuestion, graph.NodeFunc[State](n.supportQuestion), classifyOpts...)
	b.AddNode(NodeProcessOther, graph.NodeFunc[State](n.processOther))
	b.AddNode(NodeSeverityHigh, graph.NodeFunc[State](n.severityHigh))
	b.AddNode(NodeSeverityMedium, graph.NodeFunc[State](n.severityMedium))
	b.AddNode(NodeSeverityLow, graph.NodeFunc[State](n.severityLow))
	b.AddNode(NodeFeedbackPos, graph.NodeFunc[State](n.feedbackPositive))
	b.AddNode(NodeFeedbackNeg, graph.NodeFunc[State](n.feedbackNegative))
	b.AddNode(NodeComposeResponse, graph.NodeFunc[State](n.composeResponse))

	b.SetEntry(NodeProcessMessage)

	b.AddConditionalEdge(NodeProcessMessage, routeMessage,
		NodeProcessFeedback, NodeProcessSupport, NodeProcessOther, graph.End)
	b.AddConditionalEdge(NodeProcessFeedback, routeFeedback,
		NodeFeedbackPos, NodeFeedbackNeg)
	b.AddConditionalEdge(NodeProcessSupport, routeSupport,
		NodeSupportBug, NodeSupportQuestion)
	b.AddConditionalEdge(NodeSupportBug, severityRouter(n.logger),
		NodeSeverityHigh, NodeSeverityMedium, NodeSeverityLow)

	for _, from := range []string{
		NodeSeverityHigh, NodeSeverityMedium, NodeSeverityLow,
		NodeFeedbackPos, NodeFeedbackNeg, NodeSupportQuestion,
	} {
		b.AddEdge(from, NodeComposeResponse)
	}
	b.AddEdge(NodeProcessOther, graph.End)
	b.AddEdge(NodeComposeResponse, graph.End)

	return b.Build()
}
