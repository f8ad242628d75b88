package flow

import (
	"regexp"
	"strings"

	"github.com/inkwellhq/inkwell/internal/pipeline"
)

// maxTopicOptions caps how many researcher suggestions reach the menu.
const maxTopicOptions = 5

var (
	titleFieldRe   = regexp.MustCompile(`"(?:title|headline|hook)"\s*:\s*"([^"]+)"`)
	numberedLineRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`)
)

// TopicOptions extracts topic suggestions from researcher output. The
// researcher is prompted for JSON but models drift, so three parses are
// tried in order: a structured ideas/titles document, quoted title
// fields anywhere in the text, then numbered list lines.
func TopicOptions(text string) []string {
	if opts := optionsFromJSON(text); len(opts) > 0 {
		return cap5(opts)
	}
	if m := titleFieldRe.FindAllStringSubmatch(text, -1); len(m) > 0 {
		opts := make([]string, 0, len(m))
		for _, sub := range m {
			opts = append(opts, strings.TrimSpace(sub[1]))
		}
		return cap5(dedupe(opts))
	}
	if m := numberedLineRe.FindAllStringSubmatch(text, -1); len(m) > 0 {
		opts := make([]string, 0, len(m))
		for _, sub := range m {
			opts = append(opts, strings.TrimSpace(sub[1]))
		}
		return cap5(dedupe(opts))
	}
	return nil
}

func optionsFromJSON(text string) []string {
	data, err := pipeline.Extract(text)
	if err != nil {
		return nil
	}
	var raw []any
	for _, field := range []string{"ideas", "titles", "topics"} {
		if list, ok := data[field].([]any); ok {
			raw = list
			break
		}
	}
	var opts []string
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				opts = append(opts, s)
			}
		case map[string]any:
			for _, field := range []string{"title", "headline", "hook", "topic"} {
				if s, ok := v[field].(string); ok && strings.TrimSpace(s) != "" {
					opts = append(opts, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return dedupe(opts)
}

func dedupe(opts []string) []string {
	seen := make(map[string]bool, len(opts))
	out := opts[:0]
	for _, o := range opts {
		key := strings.ToLower(o)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

func cap5(opts []string) []string {
	if len(opts) > maxTopicOptions {
		return opts[:maxTopicOptions]
	}
	return opts
}
