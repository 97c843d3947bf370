// Package triage wires the IT-support workflow: the state threaded through a
// run, the nodes that classify a message and fire side effects, the routers
// between them and the Service that runs one message end to end.
package triage

// Category is the top-level classification of a message.
type Category string

// Message categories.
const (
	CategoryFeedback Category = "Feedback"
	CategorySupport  Category = "Support"
	CategorySpam     Category = "Spam"
	CategoryOther    Category = "Other"
)

// SupportType splits support requests.
type SupportType string

// Support types.
const (
	SupportBug      SupportType = "Bug"
	SupportQuestion SupportType = "TechnicalQuestion"
)

// Severity of a bug report.
type Severity string

// Severities.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Message is the inbound support message.
type Message struct {
	// Sender is the sender's email address.
	Sender string `json:"sender"`
	Text   string `json:"message"`
}

// Bug details, set by the support-bug node.
type Bug struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// TechnicalQuestion details, set by the support-question node.
type TechnicalQuestion struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer,omitempty"`
	Links       []string `json:"links"`
	AnswerFound bool     `json:"answerFound"`
}

// Support is the support sub-record. process-support sets UserID and Type;
// the bug and question nodes extend a copy of it.
type Support struct {
	UserID   string             `json:"userId,omitempty"`
	Type     SupportType        `json:"supportType"`
	Bug      *Bug               `json:"bug,omitempty"`
	Question *TechnicalQuestion `json:"technicalQuestion,omitempty"`
}

// Feedback is the feedback sub-record, set by process-feedback.
type Feedback struct {
	UserID     string `json:"userId,omitempty"`
	Text       string `json:"text"`
	IsPositive bool   `json:"isPositive"`
}

// Action records a side effect performed during the run.
type Action struct {
	// Kind is a notify.Kind* value.
	Kind   string `json:"kind"`
	Target string `json:"target"`

	Summary string `json:"summary"`

	// Key is the idempotency key the notification was sent with.
	Key string `json:"key"`
}

// State is the accumulator threaded through a triage run.
//
// Each field is unset until the node responsible for it has run; the graph
// topology guarantees nothing reads a field before then. Nodes return sparse
// State values that Merge folds in.
type State struct {
	Message  Message   `json:"message"`
	Category Category  `json:"messageType,omitempty"`
	Support  *Support  `json:"support,omitempty"`
	Feedback *Feedback `json:"feedback,omitempty"`
	Actions  []Action  `json:"actions,omitempty"`
	Reply    string    `json:"reply,omitempty"`
}

// Merge folds a node's partial update into prev:
//
//   - Message, Category, Reply: replaced when set in delta.
//   - Support, Feedback: the whole sub-record is replaced when set in delta.
//     Nodes that enrich a sub-record copy the previous one first.
//   - Actions: appended.
//
// Merging a zero delta returns prev unchanged.
func Merge(prev, delta State) State {
	out := prev
	if delta.Message != (Message{}) {
		out.Message = delta.Message
	}
	if delta.Category != "" {
		out.Category = delta.Category
	}
	if delta.Support != nil {
		out.Support = delta.Support
	}
	if delta.Feedback != nil {
		out.Feedback = delta.Feedback
	}
	if len(delta.Actions) > 0 {
		actions := make([]Action, 0, len(prev.Actions)+len(delta.Actions))
		actions = append(actions, prev.Actions...)
		out.Actions = append(actions, delta.Actions...)
	}
	if delta.Reply != "" {
		out.Reply = delta.Reply
	}
	return out
}

// clone returns a copy of s that shares no pointers with it.
func (s *Support) clone() *Support {
	if s == nil {
		return &Support{}
	}
	c := *s
	if s.Bug != nil {
		bug := *s.Bug
		c.Bug = &bug
	}
	if s.Question != nil {
		q := *s.Question
		q.Links = append([]string(nil), s.Question.Links...)
		c.Question = &q
	}
	return &c
}
