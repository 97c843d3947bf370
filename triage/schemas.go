package triage

import "github.com/dshills/support-triage/classify"

// Schemas of the five classifications. Every enumerated field is validated
// before a router reads it.
var (
	categorySchema = classify.MustSchema("message_category", `{
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["Feedback", "Support", "Spam", "Other"], "description": "The type of the message"},
    "reason": {"type": "string", "description": "Why this type was selected"}
  },
  "required": ["type", "reason"]
}`)

	sentimentSchema = classify.MustSchema("feedback_sentiment", `{
  "type": "object",
  "properties": {
    "isPositive": {"type": "boolean", "description": "Whether the feedback is positive"},
    "reason": {"type": "string", "description": "Why this polarity was selected"}
  },
  "required": ["isPositive", "reason"]
}`)

	supportTypeSchema = classify.MustSchema("support_type", `{
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["Bug", "TechnicalQuestion"], "description": "Whether the request reports a bug or asks a technical question"},
    "reason": {"type": "string", "description": "Why this type was selected"}
  },
  "required": ["type", "reason"]
}`)

	severitySchema = classify.MustSchema("bug_severity", `{
  "type": "object",
  "properties": {
    "severity": {"type": "string", "enum": ["high", "medium", "low"], "description": "The severity of the bug"},
    "description": {"type": "string", "minLength": 1, "description": "A detailed description of the bug for the support staff"},
    "reason": {"type": "string", "description": "Why this severity was selected"}
  },
  "required": ["severity", "description", "reason"]
}`)

	answerSchema = classify.MustSchema("question_answer", `{
  "type": "object",
  "properties": {
    "answer": {"type": "string", "description": "An answer based on the help center results"},
    "answerFound": {"type": "boolean", "description": "Whether the help center results answer the question"},
    "reason": {"type": "string", "description": "Why this answer was given"}
  },
  "required": ["answer", "answerFound", "reason"]
}`)
)

type categoryReply struct {
	Type   Category `json:"type"`
	Reason string   `json:"reason"`
}

type sentimentReply struct {
	IsPositive bool   `json:"isPositive"`
	Reason     string `json:"reason"`
}

type supportTypeReply struct {
	Type   SupportType `json:"type"`
	Reason string      `json:"reason"`
}

type severityReply struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Reason      string   `json:"reason"`
}

type answerReply struct {
	Answer      string `json:"answer"`
	AnswerFound bool   `json:"answerFound"`
	Reason      string `json:"reason"`
}

// SchemaNames lists the classification schemas in workflow order.
func SchemaNames() []string {
	return []string{
		categorySchema.Name(),
		sentimentSchema.Name(),
		supportTypeSchema.Name(),
		severitySchema.Name(),
		answerSchema.Name(),
	}
}
