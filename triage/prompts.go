package triage

import (
	"fmt"
	"strings"
)

const (
	categoryInstruction = `You are an expert email analyzer. You are given emails sent to a software company and give each one of the available labels:
Feedback for opinions about the product, Support for bug reports and technical questions, Spam for unsolicited or irrelevant mail, Other for anything else a human should read.
Be concise: only return the type and the reason.`

	sentimentInstruction = `You are an expert sentiment analyzer. You process feedback the company received and decide if it is positive or negative.
Be concise: only return isPositive and the reason.`

	supportTypeInstruction = `You are an expert support request analyzer. You are given a support request and label it:
Bug when something does not work as expected, TechnicalQuestion when the user asks how to do something.`

	severityInstruction = `You are an expert bug report handler. You are given a bug report, decide its severity and write a detailed description for the support staff.
high: data loss, outage or no workaround. medium: a feature is broken but a workaround exists. low: cosmetic or minor.`

	answerInstruction = `You are an expert support agent. You are given a question from a user and the search results of the help center.
Answer the question using only the help center results. If nothing in the results is useful, set answerFound to false.`
)

// questionPrompt builds the user turn of the support-question classification.
func questionPrompt(question string, articles []Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# QUESTION:\n%s\n\n# HELPCENTER SEARCH RESULT\n", strings.TrimSpace(question))
	for _, a := range articles {
		b.WriteString(a.Content)
		b.WriteString("\n")
	}
	return b.String()
}
