// Package reasoning merges an upstream reasoning side channel into the content
// stream, optionally wrapping it in <think> markup.
package reasoning

import "strings"

// Delimiters written around reasoning text.
const (
	OpenTag  = "<think>\n"
	CloseTag = "</think>\n\n"
)

// Upstream field names that carry reasoning text. Both are removed from every
// outgoing payload.
const (
	FieldReasoningContent = "reasoning_content"
	FieldReasoning        = "reasoning"
)

// State tells whether a reasoning block is currently open.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Fragment is one delta's worth of text. A nil or empty field is absent.
type Fragment struct {
	Reasoning *string
	Content   *string
}

func present(s *string) bool {
	return s != nil && *s != ""
}

// Recombiner carries the block state of a single response. It is not safe for
// concurrent use and must not be shared between requests.
type Recombiner struct {
	show  bool
	state State
}

// NewRecombiner returns a recombiner in the Closed state. When show is false
// reasoning text is dropped and only content is emitted.
func NewRecombiner(show bool) *Recombiner {
	return &Recombiner{show: show, state: Closed}
}

// State returns the current block state.
func (r *Recombiner) State() State {
	return r.state
}

// Merge returns the outgoing content for f and advances the block state.
func (r *Recombiner) Merge(f Fragment) string {
	if !r.show {
		if present(f.Content) {
			return *f.Content
		}
		return ""
	}

	var b strings.Builder
	if present(f.Reasoning) {
		if r.state == Closed {
			b.WriteString(OpenTag)
			r.state = Open
		}
		b.WriteString(*f.Reasoning)
	}
	if present(f.Content) {
		if r.state == Open {
			b.WriteString(CloseTag)
			r.state = Closed
		}
		b.WriteString(*f.Content)
	}
	return b.String()
}

// Combine applies the same rules to a complete message: the block opened for
// the reasoning text is closed within the same string, even when there is no
// content after it.
func Combine(reasoning, content *string, show bool) string {
	r := NewRecombiner(show)
	out := r.Merge(Fragment{Reasoning: reasoning, Content: content})
	if r.State() == Open {
		out += CloseTag
	}
	return out
}

// StripFields removes every reasoning field from an upstream delta or message.
func StripFields(obj map[string]interface{}) {
	delete(obj, FieldReasoningContent)
	delete(obj, FieldReasoning)
}

// FragmentFrom reads the reasoning and content fields of an upstream delta or
// message. reasoning_content takes precedence over reasoning. Non-string
// values are treated as absent.
func FragmentFrom(obj map[string]interface{}) Fragment {
	var f Fragment
	for _, key := range []string{FieldReasoningContent, FieldReasoning} {
		if s, ok := obj[key].(string); ok && s != "" {
			f.Reasoning = &s
			break
		}
	}
	if s, ok := obj["content"].(string); ok {
		f.Content = &s
	}
	return f
}
