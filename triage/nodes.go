package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/support-triage/classify"
	"github.com/dshills/support-triage/graph"
	"github.com/dshills/support-triage/graph/tool"
	"github.com/dshills/support-triage/notify"
)

// Node names.
const (
	NodeProcessMessage  = "process-message"
	NodeProcessFeedback = "process-feedback"
	NodeProcessSupport  = "process-support"
	NodeProcessOther    = "process-other"
	NodeSupportBug      = "support-bug"
	NodeSupportQuestion = "support-question"
	NodeSeverityHigh    = "bug-severity-high"
	NodeSeverityMedium  = "bug-severity-medium"
	NodeSeverityLow     = "bug-severity-low"
	NodeFeedbackPos     = "feedback-positive"
	NodeFeedbackNeg     = "feedback-negative"
	NodeComposeResponse = "compose-response"
)

// Deps are the collaborators of the triage nodes.
type Deps struct {
	// Classifier answers the five classification questions. Required.
	Classifier classify.Classifier

	// Notifier delivers tickets, chat posts and emails. Required; wrap it
	// in notify.Dedup for idempotent delivery.
	//
	// A node that outlives its timeout keeps running in the background
	// while the engine retries or fails the run. It stops before its next
	// delivery, but a Notify already in flight may still complete.
	Notifier notify.Notifier

	// Directory resolves a sender to a user ID. Defaults to the built-in
	// directory.
	Directory tool.Tool

	// HelpCenter searches articles for the question node. Defaults to the
	// built-in help center.
	HelpCenter tool.Tool

	Channels Channels

	// ClassifyPolicy, if set, applies to the five classification nodes.
	ClassifyPolicy *graph.NodePolicy

	Logger *slog.Logger
}

// nodes implements every node of the workflow over Deps.
type nodes struct {
	classifier classify.Classifier
	notifier   notify.Notifier
	directory  tool.Tool
	helpCenter tool.Tool
	channels   Channels
	logger     *slog.Logger
}

func newNodes(d Deps) (*nodes, error) {
	if d.Classifier == nil {
		return nil, fmt.Errorf("triage: classifier is required")
	}
	if d.Notifier == nil {
		return nil, fmt.Errorf("triage: notifier is required")
	}
	n := &nodes{
		classifier: d.Classifier,
		notifier:   d.Notifier,
		directory:  d.Directory,
		helpCenter: d.HelpCenter,
		channels:   d.Channels.withDefaults(),
		logger:     d.Logger,
	}
	k := DefaultKnowledge()
	if n.directory == nil {
		n.directory = NewDirectory(k.Directory)
	}
	if n.helpCenter == nil {
		n.helpCenter = NewHelpCenter(k.Articles)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n, nil
}

func (n *nodes) processMessage(ctx context.Context, s State) graph.NodeResult[State] {
	reply, err := classify.Decode[categoryReply](ctx, n.classifier, categoryInstruction, s.Message.Text, categorySchema)
	if err != nil {
		return graph.Fail[State](err)
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "message classified",
		slog.String("run_id", graph.RunIDFromContext(ctx)),
		slog.String("category", string(reply.Type)),
		slog.String("reason", reply.Reason),
	)
	return graph.Delta(State{Category: reply.Type})
}

func (n *nodes) processFeedback(ctx context.Context, s State) graph.NodeResult[State] {
	userID, err := n.lookupUser(ctx, s.Message.Sender)
	if err != nil {
		return graph.Fail[State](err)
	}
	reply, err := classify.Decode[sentimentReply](ctx, n.classifier, sentimentInstruction, s.Message.Text, sentimentSchema)
	if err != nil {
		return graph.Fail[State](err)
	}
	return graph.Delta(State{Feedback: &Feedback{
		UserID:     userID,
		Text:       s.Message.Text,
		IsPositive: reply.IsPositive,
	}})
}

func (n *nodes) processSupport(ctx context.Context, s State) graph.NodeResult[State] {
	userID, err := n.lookupUser(ctx, s.Message.Sender)
	if err != nil {
		return graph.Fail[State](err)
	}
	reply, err := classify.Decode[supportTypeReply](ctx, n.classifier, supportTypeInstruction, s.Message.Text, supportTypeSchema)
	if err != nil {
		return graph.Fail[State](err)
	}
	return graph.Delta(State{Support: &Support{UserID: userID, Type: reply.Type}})
}

func (n *nodes) supportBug(ctx context.Context, s State) graph.NodeResult[State] {
	reply, err := classify.Decode[severityReply](ctx, n.classifier, severityInstruction, s.Message.Text, severitySchema)
	if err != nil {
		return graph.Fail[State](err)
	}
	support := s.Support.clone()
	support.Bug = &Bug{Description: reply.Description, Severity: reply.Severity}
	return graph.Delta(State{Support: support})
}

func (n *nodes) supportQuestion(ctx context.Context, s State) graph.NodeResult[State] {
	out, err := n.helpCenter.Call(ctx, map[string]interface{}{"query": s.Message.Text})
	if err != nil {
		return graph.Fail[State](fmt.Errorf("help center search: %w", err))
	}
	articles, ok := out["articles"].([]Article)
	if !ok {
		return graph.Fail[State](fmt.Errorf("help center returned %T", out["articles"]))
	}

	reply, err := classify.Decode[answerReply](ctx, n.classifier, answerInstruction, questionPrompt(s.Message.Text, articles), answerSchema)
	if err != nil {
		return graph.Fail[State](err)
	}

	question := &TechnicalQuestion{
		Question:    s.Message.Text,
		Answer:      reply.Answer,
		AnswerFound: reply.AnswerFound,
		Links:       []string{},
	}
	if reply.AnswerFound {
		for _, a := range articles {
			question.Links = append(question.Links, a.Link)
		}
	}

	support := s.Support.clone()
	support.Question = question
	return graph.Delta(State{Support: support})
}

func (n *nodes) severityHigh(ctx context.Context, s State) graph.NodeResult[State] {
	desc := bugDescription(s)
	return n.notifyAll(ctx,
		outbound{kind: notify.KindTicket, target: n.channels.TicketQueue, priority: "urgent",
			subject: "High severity bug", body: desc},
		outbound{kind: notify.KindChat, suffix: "on-call", target: n.channels.OnCall, priority: "urgent",
			body: fmt.Sprintf("High severity bug reported by %s: %s", s.Message.Sender, desc)},
	)
}

func (n *nodes) severityMedium(ctx context.Context, s State) graph.NodeResult[State] {
	desc := bugDescription(s)
	return n.notifyAll(ctx,
		outbound{kind: notify.KindTicket, target: n.channels.TicketQueue, priority: "normal",
			subject: "Medium severity bug", body: desc},
		outbound{kind: notify.KindChat, suffix: "developers", target: n.channels.Developers,
			body: fmt.Sprintf("New ticket for a medium severity bug: %s", desc)},
	)
}

func (n *nodes) severityLow(ctx context.Context, s State) graph.NodeResult[State] {
	return n.notifyAll(ctx,
		outbound{kind: notify.KindTicket, target: n.channels.TicketQueue, priority: "backlog",
			subject: "Low severity bug", body: bugDescription(s)},
	)
}

func (n *nodes) feedbackPositive(ctx context.Context, s State) graph.NodeResult[State] {
	return n.notifyAll(ctx,
		outbound{kind: notify.KindChat, suffix: "feedback", target: n.channels.Feedback,
			body: fmt.Sprintf("Positive feedback from %s: %s", s.Message.Sender, s.Message.Text)},
	)
}

func (n *nodes) feedbackNegative(ctx context.Context, s State) graph.NodeResult[State] {
	return n.notifyAll(ctx,
		outbound{kind: notify.KindChat, suffix: "feedback", target: n.channels.Feedback,
			body: fmt.Sprintf("Negative feedback from %s: %s", s.Message.Sender, s.Message.Text)},
		outbound{kind: notify.KindChat, suffix: "product-manager", target: n.channels.ProductManager,
			body: fmt.Sprintf("Negative feedback needs a look: %s", s.Message.Text)},
	)
}

func (n *nodes) processOther(ctx context.Context, s State) graph.NodeResult[State] {
	res := n.notifyAll(ctx,
		outbound{kind: notify.KindForward, target: n.channels.HumanInbox,
			subject: "Message from " + s.Message.Sender, body: s.Message.Text},
	)
	if res.Err != nil {
		return res
	}
	res.Delta.Reply = ReplyForwarded
	return res
}

func (n *nodes) composeResponse(ctx context.Context, s State) graph.NodeResult[State] {
	reply := ComposeReply(s)
	if reply == "" {
		n.logger.LogAttrs(ctx, slog.LevelWarn, "nothing to reply",
			slog.String("run_id", graph.RunIDFromContext(ctx)),
			slog.String("category", string(s.Category)),
		)
		return graph.Delta(State{})
	}
	res := n.notifyAll(ctx,
		outbound{kind: notify.KindEmail, target: s.Message.Sender, subject: "Re: your message", body: reply},
	)
	if res.Err != nil {
		return res
	}
	res.Delta.Reply = reply
	return res
}

// outbound describes one notification a node sends.
type outbound struct {
	kind     string
	suffix   string
	target   string
	priority string
	subject  string
	body     string
}

// notifyAll delivers each notification in order and returns the actions
// performed. Keys are derived from the run and node, so a retried node
// re-sends only what was not delivered before.
func (n *nodes) notifyAll(ctx context.Context, msgs ...outbound) graph.NodeResult[State] {
	runID := graph.RunIDFromContext(ctx)
	nodeID := graph.NodeIDFromContext(ctx)

	actions := make([]Action, 0, len(msgs))
	for _, m := range msgs {
		kind := m.kind
		if m.suffix != "" {
			kind += ":" + m.suffix
		}
		note := notify.New(notify.IdempotencyKey(runID, nodeID, kind), m.kind, m.target, m.body)
		note.Priority = m.priority
		note.Subject = m.subject
		note.Metadata = map[string]string{"run_id": runID, "node_id": nodeID}

		if err := ctx.Err(); err != nil {
			return graph.Fail[State](err)
		}
		if err := n.notifier.Notify(ctx, note); err != nil {
			return graph.Fail[State](err)
		}
		actions = append(actions, Action{Kind: m.kind, Target: m.target, Summary: summarize(m.body), Key: note.Key})
	}
	return graph.Delta(State{Actions: actions})
}

func (n *nodes) lookupUser(ctx context.Context, sender string) (string, error) {
	out, err := n.directory.Call(ctx, map[string]interface{}{"email": sender})
	if err != nil {
		return "", fmt.Errorf("user directory: %w", err)
	}
	id, _ := out["user_id"].(string)
	return id, nil
}

func bugDescription(s State) string {
	if s.Support != nil && s.Support.Bug != nil && s.Support.Bug.Description != "" {
		return s.Support.Bug.Description
	}
	return s.Message.Text
}

func summarize(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if r := []rune(body); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return body
}
