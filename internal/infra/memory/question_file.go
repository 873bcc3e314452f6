package memory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// questionDoc is the YAML shape of a question. answer is either a 0-based choice index
// or the text of the correct choice.
type questionDoc struct {
	ID         string    `yaml:"id"`
	Prompt     string    `yaml:"question"`
	Choices    []string  `yaml:"choices"`
	Answer     yaml.Node `yaml:"answer"`
	Difficulty string    `yaml:"level"`
	Subject    string    `yaml:"subject"`
}

type questionFile struct {
	Questions []questionDoc `yaml:"questions"`
}

// FileQuestionLoader reads the bank from a YAML document.
type FileQuestionLoader struct {
	path string
}

func NewFileQuestionLoader(path string) *FileQuestionLoader {
	return &FileQuestionLoader{path: path}
}

func (l *FileQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", l.path, err)
	}
	return ParseQuestions(data)
}

// ParseQuestions decodes and normalizes a YAML question document.
func ParseQuestions(data []byte) ([]domain.Question, error) {
	var doc questionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Questions))
	out := make([]domain.Question, 0, len(doc.Questions))
	for _, d := range doc.Questions {
		if d.ID == "" {
			d.ID = contentID(d.Prompt, d.Choices)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidQuestion, d.ID)
		}
		seen[d.ID] = struct{}{}

		answer, err := decodeAnswer(d.Answer)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidQuestion, d.ID, err)
		}
		q := domain.Question{
			ID:         d.ID,
			Prompt:     d.Prompt,
			Choices:    d.Choices,
			Answer:     answer,
			Difficulty: d.Difficulty,
			Subject:    d.Subject,
		}
		if err := q.Normalize(); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// contentID derives a stable id from a question's text, so re-importing a document
// updates its questions in place and a different document adds new ones.
func contentID(prompt string, choices []string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(prompt+"\x00"+strings.Join(choices, "\x1f"))).String()
}

func decodeAnswer(node yaml.Node) (domain.Answer, error) {
	if node.Kind != yaml.ScalarNode {
		return domain.Answer{}, fmt.Errorf("answer must be a choice index or text")
	}
	if node.ShortTag() == "!!int" {
		var idx int
		if err := node.Decode(&idx); err != nil {
			return domain.Answer{}, err
		}
		return domain.IndexAnswer(idx), nil
	}
	return domain.TextAnswer(node.Value), nil
}
