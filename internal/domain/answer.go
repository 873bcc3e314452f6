package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerKind tags the representation held by an Answer.
type AnswerKind string

const (
	AnswerIndex AnswerKind = "index"
	AnswerText  AnswerKind = "text"
)

// Answer is either a zero-based choice index or a literal choice text.
// On the wire a JSON number decodes to an index and a JSON string to a text.
type Answer struct {
	Kind  AnswerKind
	Index int
	Text  string
}

func IndexAnswer(i int) Answer {
	return Answer{Kind: AnswerIndex, Index: i}
}

func TextAnswer(s string) Answer {
	return Answer{Kind: AnswerText, Text: s}
}

// IsZero reports whether no answer was given.
func (a Answer) IsZero() bool {
	return a.Kind == ""
}

// Equal is exact comparison; answers of different kinds are never equal.
func (a Answer) Equal(b Answer) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AnswerIndex:
		return a.Index == b.Index
	case AnswerText:
		return a.Text == b.Text
	}
	return false
}

// Resolve converts the answer into index form against choices.
func (a Answer) Resolve(choices []string) (Answer, error) {
	switch a.Kind {
	case AnswerIndex:
		if a.Index < 0 || a.Index >= len(choices) {
			return Answer{}, fmt.Errorf("%w: index %d out of range", ErrInvalidChoice, a.Index)
		}
		return a, nil
	case AnswerText:
		want := strings.TrimSpace(a.Text)
		for i, c := range choices {
			if strings.TrimSpace(c) == want {
				return IndexAnswer(i), nil
			}
		}
		return Answer{}, fmt.Errorf("%w: %q is not a choice", ErrInvalidChoice, a.Text)
	}
	return Answer{}, ErrInvalidChoice
}

func (a Answer) String() string {
	switch a.Kind {
	case AnswerIndex:
		return fmt.Sprintf("#%d", a.Index)
	case AnswerText:
		return a.Text
	}
	return ""
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerIndex:
		return json.Marshal(a.Index)
	case AnswerText:
		return json.Marshal(a.Text)
	}
	return []byte("null"), nil
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("answer must be a choice index or choice text: %w", err)
	}
	*a = IndexAnswer(i)
	return nil
}
