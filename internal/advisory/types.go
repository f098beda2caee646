// Package advisory calls the hosted generative-advice API that backs the
// planning thread: conversational guidance while a project has no expert,
// and end-of-session summaries for the milestone log.
package advisory

import "helplink/internal/entity"

// InlineImage is a base64-encoded image attached to the latest turn.
type InlineImage struct {
	MIMEType string
	Data     string
}

// AdviceRequest carries one planning-thread turn to the API. ContextSummary,
// when set, is folded into the system instruction so the model sees prior
// project state without replaying the whole history.
type AdviceRequest struct {
	Thread         []entity.Message
	ContextSummary string
	Image          *InlineImage
}

// Reply is one advisory turn. Images are base64 payloads as returned by the
// API, stored verbatim on the message.
type Reply struct {
	Text    string
	Images  []string
	Sources []entity.Source
}

// Summary condenses an expert conversation for the milestone log.
type Summary struct {
	Title   string
	Content string
}
