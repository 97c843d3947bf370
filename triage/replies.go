package triage

import "strings"

// Reply texts.
const (
	ReplyPositiveFeedback = "Thank you so much ❤️"
	ReplyNegativeFeedback = "Thank you for your feedback, we will look into it asap"
	ReplyBug              = "Our team is on it"
	ReplyNoAnswer         = "Our team will reach out to you asap"
	ReplyForwarded        = "Thank you for your message, we forwarded it to our team and will get back to you"
)

// ComposeReply builds the reply email for a finished run. It returns an
// empty string when the state carries nothing to answer.
func ComposeReply(s State) string {
	switch s.Category {
	case CategoryFeedback:
		if s.Feedback == nil {
			return ""
		}
		if s.Feedback.IsPositive {
			return ReplyPositiveFeedback
		}
		return ReplyNegativeFeedback

	case CategorySupport:
		if s.Support == nil {
			return ""
		}
		if s.Support.Bug != nil {
			return ReplyBug
		}
		if q := s.Support.Question; q != nil {
			if !q.AnswerFound {
				return ReplyNoAnswer
			}
			reply := strings.TrimSpace(q.Answer)
			if len(q.Links) > 0 {
				reply += "\n\nLinks: " + strings.Join(q.Links, ", ")
			}
			return reply
		}
	}
	return ""
}

// Channels names the destinations of notifications.
type Channels struct {
	// TicketQueue receives bug tickets.
	TicketQueue string `mapstructure:"ticket_queue"`

	// OnCall is paged for high-severity bugs.
	OnCall string `mapstructure:"on_call"`

	// Developers is told about medium-severity bugs.
	Developers string `mapstructure:"developers"`

	// Feedback receives every piece of feedback.
	Feedback string `mapstructure:"feedback"`

	// ProductManager is told about negative feedback.
	ProductManager string `mapstructure:"product_manager"`

	// HumanInbox receives messages no automation handles.
	HumanInbox string `mapstructure:"human_inbox"`
}

// DefaultChannels returns the default destinations.
func DefaultChannels() Channels {
	return Channels{
		TicketQueue:    "support-queue",
		OnCall:         "#support-oncall",
		Developers:     "#dev",
		Feedback:       "#feedback",
		ProductManager: "pm@company.com",
		HumanInbox:     "support@company.com",
	}
}

// withDefaults fills empty fields from DefaultChannels.
func (c Channels) withDefaults() Channels {
	d := DefaultChannels()
	if c.TicketQueue == "" {
		c.TicketQueue = d.TicketQueue
	}
	if c.OnCall == "" {
		c.OnCall = d.OnCall
	}
	if c.Developers == "" {
		c.Developers = d.Developers
	}
	if c.Feedback == "" {
		c.Feedback = d.Feedback
	}
	if c.ProductManager == "" {
		c.ProductManager = d.ProductManager
	}
	if c.HumanInbox == "" {
		c.HumanInbox = d.HumanInbox
	}
	return c
}
