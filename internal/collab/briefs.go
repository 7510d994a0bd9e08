package collab

import (
	"context"
	"fmt"
	"strings"
)

const briefSystemPrompt = `You write work briefs for autonomous coding agents.
Given a short task description and project context, produce a self-contained
brief the agent can act on without further conversation. Cover: the goal, the
relevant parts of the codebase, constraints, and what a finished result looks
like. Be concrete and concise. Do not ask questions.`

// ModelBriefs generates work briefs by asking the configured model to expand
// a one-line task description into a full brief.
type ModelBriefs struct {
	client *Client
}

// NewModelBriefs creates a brief generator backed by the given client.
func NewModelBriefs(client *Client) *ModelBriefs {
	return &ModelBriefs{client: client}
}

// GenerateBrief expands description into a self-contained work brief.
func (b *ModelBriefs) GenerateBrief(ctx context.Context, description, projectContext string) (string, error) {
	prompt := fmt.Sprintf("Task: %s\n\nProject context:\n%s\n\nWrite the brief.", description, projectContext)
	brief, err := b.client.complete(ctx, briefSystemPrompt, prompt, 4096)
	if err != nil {
		return "", fmt.Errorf("generating brief: %w", err)
	}
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return "", fmt.Errorf("model returned an empty brief")
	}
	return brief, nil
}

// TemplateBriefs is the deterministic fallback used when no API credentials
// are configured. It wraps the raw description in a minimal brief skeleton.
type TemplateBriefs struct{}

// GenerateBrief formats description into a fixed brief template.
func (TemplateBriefs) GenerateBrief(_ context.Context, description, projectContext string) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Work Brief\n\n")
	sb.WriteString("## Task\n")
	sb.WriteString(description)
	sb.WriteString("\n\n")
	if projectContext != "" {
		sb.WriteString("## Project\n")
		sb.WriteString(projectContext)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Instructions\n")
	sb.WriteString("Complete the task above. When finished, print a line starting with \"summary:\" describing what you did, and list any files you modified.\n")
	return sb.String(), nil
}
