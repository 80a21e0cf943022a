// Package agent runs the three-stage question answering crew: a SQL
// developer with database tools, a data analyst and a report editor.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
)

const defaultModel = "claude-haiku-4-5"

// CrewConfig holds the configuration for creating a crew
type CrewConfig struct {
	apiKey string
	model  string
	logger *slog.Logger
}

// CrewOption is a functional option for configuring the crew
type CrewOption func(*CrewConfig) error

// WithAPIKey sets the Anthropic API key
func WithAPIKey(apiKey string) CrewOption {
	return func(c *CrewConfig) error {
		if apiKey == "" {
			return fmt.Errorf("API key cannot be empty")
		}
		c.apiKey = apiKey
		return nil
	}
}

// WithAPIKeyFromEnv sets the API key from the ANTHROPIC_API_KEY environment variable
func WithAPIKeyFromEnv() CrewOption {
	return func(c *CrewConfig) error {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
		c.apiKey = apiKey
		return nil
	}
}

// WithModel sets the Claude model to use (default: claude-haiku-4-5)
func WithModel(model string) CrewOption {
	return func(c *CrewConfig) error {
		if model == "" {
			return fmt.Errorf("model cannot be empty")
		}
		c.model = model
		return nil
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) CrewOption {
	return func(c *CrewConfig) error {
		c.logger = logger
		return nil
	}
}

// NewCrew builds a Pipeline whose stages are Claude agents. Only the SQL
// developer stage gets the toolbox.
func NewCrew(ctx context.Context, toolbox *Toolbox, opts ...CrewOption) (*Pipeline, error) {
	config := &CrewConfig{model: defaultModel}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if config.apiKey == "" {
		return nil, fmt.Errorf("API key is required (use WithAPIKey or WithAPIKeyFromEnv)")
	}
	if toolbox == nil {
		return nil, fmt.Errorf("toolbox is required")
	}

	provider, err := anthropic.New(anthropic.WithAPIKey(config.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
	}
	model, err := provider.LanguageModel(ctx, config.model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Claude model: %w", err)
	}

	extract := &agentStage{agent: fantasy.NewAgent(
		model,
		fantasy.WithSystemPrompt(SQLDeveloper.SystemPrompt()),
		fantasy.WithTools(toolbox.Tools()...),
	)}
	analyze := &agentStage{agent: fantasy.NewAgent(
		model,
		fantasy.WithSystemPrompt(DataAnalyst.SystemPrompt()),
	)}
	report := &agentStage{agent: fantasy.NewAgent(
		model,
		fantasy.WithSystemPrompt(ReportWriter.SystemPrompt()),
	)}

	return NewPipeline(extract, analyze, report, config.logger), nil
}

// agentStage runs a prompt through a fantasy agent, letting it call its
// tools as many times as it needs.
type agentStage struct {
	agent fantasy.Agent
}

func (s *agentStage) Run(ctx context.Context, prompt string) (string, error) {
	result, err := s.agent.Generate(ctx, fantasy.AgentCall{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return result.Response.Content.Text(), nil
}
