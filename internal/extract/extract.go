// Package extract turns free text into task drafts with Claude.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"rpm/internal/domain"
)

// Extractor proposes tasks found in text. Drafts are not persisted.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]domain.TaskDraft, error)
}

// ErrNoAPIKey is returned when no Anthropic key is configured.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY not set")

type Client struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient builds a Claude backed extractor. apiKey defaults to the
// ANTHROPIC_API_KEY environment variable.
func NewClient(apiKey, model string, maxTokens int, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		return nil, errors.New("extraction model is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		inner:     anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}, nil
}

const systemPrompt = `You extract actionable tasks from personal planning notes.

Return JSON with this exact structure:
{
  "tasks": [
    {
      "name": "<short imperative title>",
      "type": "Milestone | Sub-Milestone | Task | Subtask",
      "category": "Personal | Business",
      "subcategory": "<one of the subcategories listed below, or empty>",
      "time_horizon": "<one of the time horizons listed below, or empty>",
      "priority": "High | Medium | Low",
      "estimated_hours": <number or null>,
      "due_date": "<YYYY-MM-DD or null>",
      "why": "<one sentence rationale, or empty>"
    }
  ]
}

Rules:
- One entry per distinct task. Do not invent tasks that the text does not imply.
- Prefer Task unless the text clearly describes a larger goal.
- Return ONLY the JSON object. No markdown fences, no commentary.
`

func buildSystem() string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\nPersonal subcategories: ")
	b.WriteString(strings.Join(domain.Subcategories[domain.CategoryPersonal], ", "))
	b.WriteString("\nBusiness subcategories: ")
	b.WriteString(strings.Join(domain.Subcategories[domain.CategoryBusiness], ", "))
	b.WriteString("\nTime horizons: ")
	b.WriteString(strings.Join(domain.TimeHorizons, ", "))
	b.WriteString("\n")
	return b.String()
}

func (c *Client) Extract(ctx context.Context, text string) ([]domain.TaskDraft, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is required")
	}
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: buildSystem()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API call: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return ParseDrafts(out.String())
}

// ParseDrafts decodes a model reply, dropping nameless drafts and values
// outside the known vocabularies.
func ParseDrafts(raw string) ([]domain.TaskDraft, error) {
	text := stripJSONFences(raw)
	var reply struct {
		Tasks []domain.TaskDraft `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return nil, fmt.Errorf("parse claude response: %w\nraw: %s", err, text)
	}
	drafts := make([]domain.TaskDraft, 0, len(reply.Tasks))
	for _, d := range reply.Tasks {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			continue
		}
		d.Type = canonical(d.Type, string(domain.TaskTypeMilestone), string(domain.TaskTypeSubMilestone), string(domain.TaskTypeTask), string(domain.TaskTypeSubtask))
		d.Category = canonical(d.Category, string(domain.CategoryPersonal), string(domain.CategoryBusiness))
		d.Priority = canonical(d.Priority, string(domain.PriorityHigh), string(domain.PriorityMedium), string(domain.PriorityLow))
		d.TimeHorizon = canonical(d.TimeHorizon, domain.TimeHorizons...)
		if d.Category == "" {
			d.Subcategory = ""
		} else {
			d.Subcategory = canonical(d.Subcategory, domain.Subcategories[domain.Category(d.Category)]...)
		}
		if d.DueDate != nil {
			if _, err := domain.ParseDate(*d.DueDate); err != nil {
				d.DueDate = nil
			}
		}
		if d.EstimatedHours != nil && *d.EstimatedHours < 0 {
			d.EstimatedHours = nil
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// canonical matches v case-insensitively against allowed; unknown values
// become empty so task defaults apply.
func canonical(v string, allowed ...string) string {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(a, v) {
			return a
		}
	}
	return ""
}

// ToTask converts a draft into a task ready to be created.
func ToTask(d domain.TaskDraft) domain.Task {
	return domain.Task{
		// Slot name lists are "|" separated.
		Name:           strings.ReplaceAll(d.Name, "|", "/"),
		Type:           domain.TaskType(d.Type),
		Category:       domain.Category(d.Category),
		Subcategory:    d.Subcategory,
		TimeHorizon:    d.TimeHorizon,
		Priority:       domain.Priority(d.Priority),
		EstimatedHours: d.EstimatedHours,
		DueDate:        d.DueDate,
		Why:            d.Why,
	}
}

// stripJSONFences removes markdown code fences Claude sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
