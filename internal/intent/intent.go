// Package intent classifies free-text chat messages into a small set of
// tagged actions. A single model call produces a response that may carry
// an action marker; parsing the marker happens here so the conversation
// engine's transition logic stays free of string matching and of any
// model behavior.
package intent

import (
	"regexp"
	"strings"

	"github.com/inkwellhq/inkwell/pkg/models"
)

// Intent is the tagged result of classifying one message.
type Intent interface {
	isIntent()
}

// ContentRequest asks for content about a known topic.
type ContentRequest struct {
	Topic  string
	Format models.Format
}

// ResearchRequest asks the researcher to suggest topics first.
type ResearchRequest struct{}

// ScheduleRequest asks to create a recurring trigger.
type ScheduleRequest struct {
	Name     string
	CronExpr string
	Topics   []string
	Format   models.Format
}

// StageRequest asks to add a new pipeline stage via the onboarding wizard.
type StageRequest struct{}

// LiteralTextRequest carries an exact phrase the user wants used verbatim.
type LiteralTextRequest struct {
	Text string
}

// ContextRequest carries a block of user-provided context to build content
// from, skipping research.
type ContextRequest struct {
	Topic string
	Text  string
}

// PlainReply is an ordinary assistant response to relay unchanged.
type PlainReply struct {
	Text string
}

func (ContentRequest) isIntent()     {}
func (ResearchRequest) isIntent()    {}
func (ScheduleRequest) isIntent()    {}
func (StageRequest) isIntent()       {}
func (LiteralTextRequest) isIntent() {}
func (ContextRequest) isIntent()     {}
func (PlainReply) isIntent()         {}

var (
	contentRe  = regexp.MustCompile(`(?m)\[ACTION:CONTENT\]\s*topic:\s*(.+?)(?:\s*\|\s*format:\s*(\S+))?\s*$`)
	scheduleRe = regexp.MustCompile(`\[ACTION:SCHEDULE\]\s*name:\s*(.+?)\s*\|\s*cron:\s*"(.+?)"\s*\|\s*topics:\s*"(.+?)"\s*\|\s*format:\s*(\S+)`)
	literalRe  = regexp.MustCompile(`(?s)\[ACTION:VERBATIM\]\s*text:\s*(.+)\z`)
	contextRe  = regexp.MustCompile(`(?s)\[ACTION:CONTEXT\]\s*topic:\s*(.+?)\s*\|\s*text:\s*(.+)\z`)
)

// Parse maps a model response to an Intent. A response without any marker
// is a PlainReply carrying the response text itself.
func Parse(response string) Intent {
	if strings.Contains(response, "[ACTION:RESEARCH]") {
		return ResearchRequest{}
	}
	if strings.Contains(response, "[ACTION:NEW_STAGE]") {
		return StageRequest{}
	}
	if m := scheduleRe.FindStringSubmatch(response); m != nil {
		topics := []string{}
		for _, t := range strings.Split(m[3], ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
		return ScheduleRequest{
			Name:     strings.TrimSpace(m[1]),
			CronExpr: strings.TrimSpace(m[2]),
			Topics:   topics,
			Format:   normalizeFormat(m[4]),
		}
	}
	if m := contentRe.FindStringSubmatch(response); m != nil {
		return ContentRequest{
			Topic:  strings.TrimSpace(m[1]),
			Format: normalizeFormat(m[2]),
		}
	}
	if m := literalRe.FindStringSubmatch(response); m != nil {
		return LiteralTextRequest{Text: strings.TrimSpace(m[1])}
	}
	if m := contextRe.FindStringSubmatch(response); m != nil {
		return ContextRequest{
			Topic: strings.TrimSpace(m[1]),
			Text:  strings.TrimSpace(m[2]),
		}
	}
	return PlainReply{Text: response}
}

func normalizeFormat(raw string) models.Format {
	f := models.Format(strings.TrimSpace(raw))
	for _, known := range models.Formats() {
		if f == known {
			return f
		}
	}
	return models.FormatSinglePost
}
