package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"quizzai/internal/config"
)

const reactMaxStep = 12

// Task is a single prompt dispatched to an agent.
type Task struct {
	SessionID      string
	System         string
	Prompt         string
	ExpectedOutput string
}

// Executor runs a task against a language model and returns its raw text.
type Executor interface {
	Execute(ctx context.Context, task Task) (string, error)
}

// ExecutorFactory builds the executor backing a newly created agent.
type ExecutorFactory func(ctx context.Context) (Executor, error)

var taskTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage("{system}"),
	schema.UserMessage("{prompt}\n\nExpected output: {expected_output}"),
)

type einoExecutor struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
}

// NewExecutor wraps chatModel; with tools the task runs through a ReAct agent.
func NewExecutor(ctx context.Context, chatModel model.ToolCallingChatModel, tools []tool.BaseTool) (Executor, error) {
	if chatModel == nil {
		return nil, errors.New("chat model required")
	}
	exec := &einoExecutor{chatModel: chatModel}
	if len(tools) > 0 {
		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
			MaxStep: reactMaxStep,
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		exec.agent = agent
	}
	return exec, nil
}

func (e *einoExecutor) Execute(ctx context.Context, task Task) (string, error) {
	messages, err := taskTemplate.Format(ctx, map[string]any{
		"system":          task.System,
		"prompt":          task.Prompt,
		"expected_output": task.ExpectedOutput,
	})
	if err != nil {
		return "", fmt.Errorf("format task: %w", err)
	}

	var resp *schema.Message
	if e.agent != nil {
		resp, err = e.agent.Generate(WithToolSession(ctx, task.SessionID), messages)
	} else {
		resp, err = e.chatModel.Generate(ctx, messages)
	}
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", errors.New("empty model response")
	}
	return resp.Content, nil
}

// NewExecutorFactory returns a factory bound to the configured provider/model.
// The chat model is only constructed when the factory runs, so a missing API
// key surfaces on the first agent run.
func NewExecutorFactory(cfg *config.Config) ExecutorFactory {
	return func(ctx context.Context) (Executor, error) {
		provider := cfg.Agent.Provider
		chatModel, err := NewChatModel(ctx, provider, cfg.Providers[provider], cfg.Agent.Model, cfg.Agent.Temperature)
		if err != nil {
			return nil, err
		}
		var tools []tool.BaseTool
		if cfg.BasicConfig.EnableWebSearch {
			tools = InitToolsChain()
			log.Printf("[ai] %d tools enabled for agent", len(tools))
		}
		return NewExecutor(ctx, chatModel, tools)
	}
}
