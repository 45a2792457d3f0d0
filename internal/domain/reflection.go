package domain

import (
	"fmt"
	"strings"
)

type ReflectionKind string

const (
	ReflectionNone        ReflectionKind = "none"
	ReflectionPlaceholder ReflectionKind = "placeholder"
	ReflectionRecurring   ReflectionKind = "recurring"
	ReflectionMultiple    ReflectionKind = "multiple"
	ReflectionText        ReflectionKind = "text"
)

// Legacy tags of the reflection column.
const (
	PlaceholderTag = "PLACEHOLDER:"
	RecurringTag   = "RECURRING_TASK:"
	MultipleTag    = "MULTIPLE_TASKS:"
	FromTag        = "FROM:"
	nameSeparator  = "|"
)

// Reflection is the decoded payload of a schedule entry. From carries backlog
// provenance independently of the payload kind.
type Reflection struct {
	Kind  ReflectionKind `json:"kind" enum:"none,placeholder,recurring,multiple,text"`
	Names []string       `json:"names,omitempty"`
	Text  string         `json:"text,omitempty"`
	From  string         `json:"from,omitempty"`
}

func RecurringReflection(name string) Reflection {
	return Reflection{Kind: ReflectionRecurring, Names: []string{name}}
}

func MultipleReflection(names ...string) Reflection {
	return Reflection{Kind: ReflectionMultiple, Names: append([]string(nil), names...)}
}

func PlaceholderReflection(text string) Reflection {
	return Reflection{Kind: ReflectionPlaceholder, Text: text}
}

// CheckName reports whether name can be stored inside a reflection. The
// separator and the provenance tag would split the name on decode.
func CheckName(name string) error {
	if strings.Contains(name, nameSeparator) {
		return fmt.Errorf("must not contain %q", nameSeparator)
	}
	if strings.Contains(name, FromTag) {
		return fmt.Errorf("must not contain %q", FromTag)
	}
	return nil
}

// Check reports whether the reflection survives an Encode/ParseReflection
// round trip unchanged.
func (r Reflection) Check() error {
	for _, n := range r.Names {
		if err := CheckName(n); err != nil {
			return fmt.Errorf("name %q %w", n, err)
		}
	}
	if strings.Contains(r.Text, FromTag) {
		return fmt.Errorf("text must not contain %q", FromTag)
	}
	if strings.Contains(r.From, FromTag) {
		return fmt.Errorf("from must not contain %q", FromTag)
	}
	return nil
}

// ParseReflection decodes the legacy text encoding. Provenance is the
// trailing FROM: tag, the last one in the text.
func ParseReflection(raw string) Reflection {
	r := Reflection{Kind: ReflectionNone}
	body := raw
	if i := strings.LastIndex(raw, FromTag); i >= 0 && (i == 0 || raw[i-1] == ' ') {
		r.From = strings.TrimSpace(raw[i+len(FromTag):])
		body = strings.TrimRight(raw[:i], " ")
	}
	switch {
	case body == "":
	case strings.HasPrefix(body, PlaceholderTag):
		r.Kind = ReflectionPlaceholder
		r.Text = strings.TrimPrefix(body, PlaceholderTag)
	case strings.HasPrefix(body, RecurringTag):
		r.Kind = ReflectionRecurring
		r.Names = []string{strings.TrimPrefix(body, RecurringTag)}
	case strings.HasPrefix(body, MultipleTag):
		r.Kind = ReflectionMultiple
		r.Names = strings.Split(strings.TrimPrefix(body, MultipleTag), nameSeparator)
	default:
		r.Kind = ReflectionText
		r.Text = body
	}
	return r
}

// Encode renders the legacy text encoding. The empty string means no reflection.
func (r Reflection) Encode() string {
	var body string
	switch r.Kind {
	case ReflectionPlaceholder:
		body = PlaceholderTag + r.Text
	case ReflectionRecurring:
		if len(r.Names) > 0 {
			body = RecurringTag + r.Names[0]
		}
	case ReflectionMultiple:
		if len(r.Names) > 0 {
			body = MultipleTag + strings.Join(r.Names, nameSeparator)
		}
	case ReflectionText:
		body = r.Text
	}
	if r.From != "" {
		if body != "" {
			body += " "
		}
		body += FromTag + r.From
	}
	return body
}

func (r Reflection) IsPlaceholder() bool {
	return r.Kind == ReflectionPlaceholder
}

// RecurringNames returns the occupant names of a recurring or multiple payload.
func (r Reflection) RecurringNames() []string {
	if r.Kind != ReflectionRecurring && r.Kind != ReflectionMultiple {
		return nil
	}
	return r.Names
}

// WithName adds an occupant, promoting a single recurring payload to the
// multiple form.
func (r Reflection) WithName(name string) Reflection {
	out := Reflection{From: r.From}
	names := r.RecurringNames()
	if len(names) == 0 {
		out.Kind = ReflectionRecurring
		out.Names = []string{name}
		return out
	}
	out.Kind = ReflectionMultiple
	out.Names = append(append([]string(nil), names...), name)
	return out
}

// WithoutName removes one occupant. The index addresses a position in the
// multiple list; when it is out of range or names another occupant, the first
// occurrence of name is removed instead. Two occupants collapse to the single
// form, the last one clears the payload. The bool reports whether anything
// was removed.
func (r Reflection) WithoutName(index int, name string) (Reflection, bool) {
	names := r.RecurringNames()
	pos := -1
	if index >= 0 && index < len(names) && names[index] == name {
		pos = index
	} else {
		for i, n := range names {
			if n == name {
				pos = i
				break
			}
		}
	}
	if pos < 0 {
		return r, false
	}
	rest := make([]string, 0, len(names)-1)
	rest = append(rest, names[:pos]...)
	rest = append(rest, names[pos+1:]...)
	out := Reflection{From: r.From}
	switch len(rest) {
	case 0:
		out.Kind = ReflectionNone
	case 1:
		out.Kind = ReflectionRecurring
		out.Names = rest
	default:
		out.Kind = ReflectionMultiple
		out.Names = rest
	}
	return out, true
}
