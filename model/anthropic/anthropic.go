// Package anthropic provides a model adapter for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
)

// ProviderName is the registry key of this adapter.
const ProviderName = "anthropic"

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	// MaxRetries is handed to the SDK; retries normally belong to the retry package.
	MaxRetries int
}

// Adapter wraps the Anthropic Messages API behind model.Adapter.
type Adapter struct {
	client *anthropic.Client
	opts   Options
}

// NewAdapter creates a new Anthropic adapter using the official client.
func NewAdapter(optFns ...func(o *Options)) *Adapter {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Adapter{
		client: &client,
		opts:   opts,
	}
}

// NewAdapterFromClient creates a new Anthropic adapter from an existing client.
func NewAdapterFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Adapter {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Adapter{
		client: client,
		opts:   opts,
	}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaudeSonnet4_0,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Info returns metadata describing this adapter.
func (a *Adapter) Info() model.Info {
	return model.Info{Name: string(a.opts.Model), Provider: ProviderName}
}

// Capabilities reports that Anthropic can force a tool and stream tool input,
// but has no JSON response mode.
func (a *Adapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		SupportsToolForcing:    true,
		SupportsJSONMode:       false,
		SupportsStreamingTools: true,
		SupportedFieldTypes:    model.AllFieldTypes(),
	}
}

// Execute sends a single Messages request.
func (a *Adapter) Execute(ctx context.Context, req model.Request) (model.RawResponse, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, transportError(err)
	}
	return &Response{Message: resp}, nil
}

// ExecuteStream returns a lazy event stream; nothing is sent before the first Next.
func (a *Adapter) ExecuteStream(ctx context.Context, req model.Request) (model.Stream, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}
	return &stream{ctx: ctx, client: a.client, params: params, tools: map[int64]bool{}}, nil
}

func (a *Adapter) buildParams(req model.Request) (anthropic.MessageNewParams, error) {
	messages, system, err := buildMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model.ResolveModel(req, string(a.opts.Model))),
		Messages:    messages,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	p := req.Params
	if p.Temperature != nil {
		params.Temperature = anthropic.Float(*p.Temperature)
	}
	if p.TopP != nil {
		params.TopP = anthropic.Float(*p.TopP)
	}
	if p.MaxTokens != nil {
		params.MaxTokens = *p.MaxTokens
	}
	if len(p.Stop) > 0 {
		params.StopSequences = p.Stop
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
		if req.ForceTool != "" {
			params.ToolChoice = anthropic.ToolChoiceParamOfTool(req.ForceTool)
		}
	}
	return params, nil
}

// buildMessages converts the history to Anthropic messages. System text is
// returned separately; consecutive tool results are folded into a single user
// message as the API requires.
func buildMessages(in []core.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	var (
		messages []anthropic.MessageParam
		system   []anthropic.TextBlockParam
		results  []anthropic.ContentBlockParamUnion
	)

	flushResults := func() {
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range in {
		if m.Role == core.RoleTool {
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), m.IsError))
			continue
		}
		flushResults()

		switch m.Role {
		case core.RoleSystem:
			if text := m.Text(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case core.RoleUser:
			content, err := buildUserContent(m.Parts)
			if err != nil {
				return nil, nil, err
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		case core.RoleAssistant:
			if content := buildAssistantContent(m); len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		default:
			return nil, nil, core.NewConfigurationError("messages", fmt.Sprintf("unsupported role %q", m.Role))
		}
	}
	flushResults()

	return messages, system, nil
}

// buildUserContent builds content for user messages.
func buildUserContent(parts []core.Part) ([]anthropic.ContentBlockParamUnion, error) {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ImagePart:
			if part.Inline() {
				content = append(content, anthropic.NewImageBlockBase64(part.MediaType, encode(part.Data)))
			} else {
				content = append(content, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: part.URL}))
			}
		case core.DocumentPart:
			block, err := documentBlock(part)
			if err != nil {
				return nil, err
			}
			content = append(content, block)
		case core.AudioPart:
			return nil, core.NewConfigurationError("audio", "anthropic does not accept audio input")
		}
	}

	return content, nil
}

func documentBlock(part core.DocumentPart) (anthropic.ContentBlockParamUnion, error) {
	switch {
	case part.MediaType == "application/pdf" && part.Inline():
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: encode(part.Data)}), nil
	case part.MediaType == "application/pdf":
		return anthropic.NewDocumentBlock(anthropic.URLPDFSourceParam{URL: part.URL}), nil
	case strings.HasPrefix(part.MediaType, "text/") && part.Inline():
		return anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: string(part.Data)}), nil
	default:
		return anthropic.ContentBlockParamUnion{}, core.NewConfigurationError("document",
			fmt.Sprintf("anthropic cannot load %s document from URL", part.MediaType))
	}
}

// buildAssistantContent builds content for assistant messages.
func buildAssistantContent(m core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	if text := m.Text(); text != "" {
		content = append(content, anthropic.NewTextBlock(text))
	}
	for _, tc := range m.ToolCalls {
		input := tc.Arguments
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}

	return content
}

// buildTools converts tool definitions to Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		var inputSchema anthropic.ToolInputSchemaParam

		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredNames(params["required"])
			if defs, exists := params["$defs"]; exists {
				inputSchema.ExtraFields = map[string]any{"$defs": defs}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if tool.Function.Description != "" {
			anthropicTools[i].OfTool.Description = anthropic.String(tool.Function.Description)
		}
	}

	return anthropicTools
}

func requiredNames(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		names := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

func encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func transportError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return core.NewProviderTransportError(ProviderName, apiErr.StatusCode, err)
	}
	return core.NewProviderTransportError(ProviderName, 0, err)
}

var _ model.Adapter = (*Adapter)(nil)
