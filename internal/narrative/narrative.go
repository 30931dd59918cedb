// Package narrative turns structured session analysis into prose
// recommendations via an external model. It is optional and never sits on
// the ingest path; callers invoke it fire-and-forget at session end.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
)

// ErrNotConfigured indicates the annotator has no client to call.
var ErrNotConfigured = errors.New("narrative annotator is not configured")

// Summary is the structured input handed to the annotator.
type Summary struct {
	ChildName         string
	SessionMinutes    float64
	TotalInteractions int
	AverageRisk       float64
	Milestones        []string
	Recommendations   []string
	ConcernFlags      []string
}

// Annotator produces a prose narrative for a session summary.
type Annotator interface {
	Annotate(ctx context.Context, summary Summary) (string, error)
}

const instructions = `You are a pediatric session assistant. Write a short,
encouraging narrative (3-5 sentences) for a caregiver, summarizing the
session below. Mention milestones if any, keep recommendations concrete,
and avoid clinical jargon.`

// OpenAI annotates summaries via the OpenAI responses API.
type OpenAI struct {
	client *openai.Client
	model  string
}

var _ Annotator = (*OpenAI)(nil)

// NewOpenAI returns an annotator backed by the given client and model.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

// Annotate renders the summary as prose. Failures surface as errors; callers
// degrade by omitting the narrative.
func (a *OpenAI) Annotate(ctx context.Context, summary Summary) (string, error) {
	if a == nil || a.client == nil || a.model == "" {
		return "", ErrNotConfigured
	}

	params := responses.ResponseNewParams{
		Model:           a.model,
		MaxOutputTokens: openai.Int(400),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(Prompt(summary), responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("generate narrative: %w", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", fmt.Errorf("generate narrative: empty response")
	}
	return text, nil
}

// Prompt renders the summary as the model input.
func Prompt(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Child: %s\n", summary.ChildName)
	fmt.Fprintf(&b, "Session length: %.0f minutes\n", summary.SessionMinutes)
	fmt.Fprintf(&b, "Interactions: %d\n", summary.TotalInteractions)
	fmt.Fprintf(&b, "Average overstimulation risk: %.2f\n", summary.AverageRisk)
	if len(summary.Milestones) > 0 {
		fmt.Fprintf(&b, "Milestones reached: %s\n", strings.Join(summary.Milestones, ", "))
	}
	if len(summary.Recommendations) > 0 {
		fmt.Fprintf(&b, "Recommendation tags: %s\n", strings.Join(summary.Recommendations, ", "))
	}
	if len(summary.ConcernFlags) > 0 {
		fmt.Fprintf(&b, "Concerns: %s\n", strings.Join(summary.ConcernFlags, ", "))
	}
	return b.String()
}

// Noop is an annotator that produces no narrative.
type Noop struct{}

var _ Annotator = Noop{}

// Annotate always reports the annotator as unconfigured.
func (Noop) Annotate(context.Context, Summary) (string, error) {
	return "", ErrNotConfigured
}
