// Package exampleCapability wires the demo tools, resources and prompts for
// the example server.
package exampleCapability

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwire/mcpwire/server"
	"github.com/mcpwire/mcpwire/server/mcp"
	"github.com/mcpwire/mcpwire/server/mcp/capability"
	"github.com/mcpwire/mcpwire/shared/schema"
)

type echoArgs struct {
	Message string `json:"message" jsonschema:"the text to echo back"`
}

type longTaskArgs struct {
	Steps   int `json:"steps,omitempty" jsonschema:"number of steps to run"`
	DelayMS int `json:"delayMs,omitempty" jsonschema:"delay between steps in milliseconds"`
}

// BuildOptions assembles the server options for the example server.
func BuildOptions(logger *zap.Logger) []server.ServerOption {
	return []server.ServerOption{
		server.WithTool(echoTool()),
		server.WithTool(longTaskTool()),
		server.WithTool(askUserTool()),
		server.WithResource(readmeResource()),
		server.WithResourceTemplate(greetingTemplate()),
		server.WithPrompt(summarizePrompt()),
	}
}

// echoTool returns its input, demonstrating typed input schemas.
func echoTool() *capability.Tool {
	inputSchema, err := mcp.SchemaFor[echoArgs]()
	if err != nil {
		panic(fmt.Sprintf("echo input schema: %v", err))
	}
	return &capability.Tool{
		Name:        "echo",
		Description: "Echoes back the provided message",
		InputSchema: inputSchema,
		Handler: func(rc *mcp.RequestContext, arguments schema.Arguments) (*mcp.ToolResult, error) {
			message, _ := arguments["message"].(string)
			return &mcp.ToolResult{Content: schema.NewTextContent("Echo: " + message)}, nil
		},
	}
}

// longTaskTool reports progress notifications while it works.
func longTaskTool() *capability.Tool {
	inputSchema, err := mcp.SchemaFor[longTaskArgs]()
	if err != nil {
		panic(fmt.Sprintf("longTask input schema: %v", err))
	}
	return &capability.Tool{
		Name:        "longTask",
		Description: "Runs a multi-step task, reporting progress after every step",
		InputSchema: inputSchema,
		Handler: func(rc *mcp.RequestContext, arguments schema.Arguments) (*mcp.ToolResult, error) {
			steps := 5
			if v, ok := arguments["steps"].(float64); ok && v > 0 {
				steps = int(v)
			}
			delay := 100 * time.Millisecond
			if v, ok := arguments["delayMs"].(float64); ok && v > 0 {
				delay = time.Duration(v) * time.Millisecond
			}

			total := float64(steps)
			for i := 1; i <= steps; i++ {
				time.Sleep(delay)
				if err := rc.Progress(float64(i), &total, fmt.Sprintf("step %d of %d", i, steps)); err != nil {
					rc.Logger.Debug("Progress notification failed", zap.Error(err))
				}
			}
			return &mcp.ToolResult{
				Content: schema.NewTextContent(fmt.Sprintf("completed %d steps", steps)),
			}, nil
		},
	}
}

// askUserTool asks the connected client a question via elicitation.
func askUserTool() *capability.Tool {
	requestedSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"answer": {"type": "string", "title": "Answer", "description": "Your answer to the question"}
		},
		"required": ["answer"]
	}`)
	return &capability.Tool{
		Name:        "askUser",
		Description: "Asks the user a question and returns their answer",
		InputSchema: mcp.RawSchema(json.RawMessage(`{
			"type": "object",
			"properties": {"question": {"type": "string"}},
			"required": ["question"]
		}`)),
		Handler: func(rc *mcp.RequestContext, arguments schema.Arguments) (*mcp.ToolResult, error) {
			question, _ := arguments["question"].(string)
			result, err := rc.Elicit(rc.Ctx, question, requestedSchema)
			if err != nil {
				return nil, err
			}
			if result.Action != schema.ElicitActionAccept {
				return &mcp.ToolResult{
					Content: schema.NewTextContent("user " + result.Action + "ed the question"),
				}, nil
			}
			answer, _ := result.Content["answer"].(string)
			return &mcp.ToolResult{Content: schema.NewTextContent("user answered: " + answer)}, nil
		},
	}
}

// readmeResource is a static text resource.
func readmeResource() *capability.Resource {
	const uri = "file:///readme.txt"
	return &capability.Resource{
		URI:         uri,
		Name:        "readme",
		Description: "A short introduction to this example server",
		MimeType:    "text/plain",
		Handler: func(rc *mcp.RequestContext, _ string) ([]schema.ResourceContent, error) {
			return []schema.ResourceContent{{
				URI:      uri,
				MimeType: "text/plain",
				Text:     "This example server demonstrates tools, resources and prompts.",
			}}, nil
		},
	}
}

// greetingTemplate is a parameterized resource: greeting://{name}.
func greetingTemplate() *capability.Template {
	return &capability.Template{
		URITemplate: "greeting://{name}",
		Name:        "greeting",
		Description: "A personalized greeting",
		MimeType:    "text/plain",
		Validators: map[string]capability.VariableValidator{
			"name": func(value string) error {
				if strings.TrimSpace(value) == "" {
					return fmt.Errorf("name must not be empty")
				}
				return nil
			},
		},
		Handler: func(rc *mcp.RequestContext, uri string, variables map[string]string) ([]schema.ResourceContent, error) {
			return []schema.ResourceContent{{
				URI:      uri,
				MimeType: "text/plain",
				Text:     "Hello, " + variables["name"] + "!",
			}}, nil
		},
	}
}

// summarizePrompt renders a summarization prompt with one required argument.
func summarizePrompt() *capability.Prompt {
	return &capability.Prompt{
		Name:        "summarize",
		Description: "Builds a prompt asking the model to summarize the given text",
		Arguments: []schema.PromptArgument{
			{Name: "text", Description: "The text to summarize", Required: true},
		},
		Handler: func(rc *mcp.RequestContext, arguments map[string]string) (*schema.GetPromptResult, error) {
			return &schema.GetPromptResult{
				Description: "Summarization prompt",
				Messages: []schema.PromptMessage{{
					Role: schema.RoleUser,
					Content: schema.Content{
						Type: "text",
						Text: strPtr("Please summarize the following text:\n\n" + arguments["text"]),
					},
				}},
			}, nil
		},
	}
}

func strPtr(s string) *string { return &s }
