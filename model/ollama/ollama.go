// Package ollama provides a model adapter for a local Ollama server using the
// native /api/chat endpoint.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/ollama/ollama/api"
)

// ProviderName is the registry key of this adapter.
const ProviderName = "ollama"

// Options configures the Ollama adapter.
type Options struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Adapter talks to Ollama's chat API. Ollama cannot force a tool choice and
// delivers tool calls whole, so tool calls only surface with the final chunk
// of a stream.
type Adapter struct {
	client *api.Client
	opts   Options
}

// NewAdapter creates an adapter for the server at Options.BaseURL.
func NewAdapter(optFns ...func(o *Options)) (*Adapter, error) {
	opts := Options{
		Model:      "llama3.1:latest",
		BaseURL:    "http://localhost:11434",
		HTTPClient: http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	parsedURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, core.NewConfigurationError("base_url", fmt.Sprintf("invalid Ollama URL: %v", err))
	}

	return &Adapter{
		client: api.NewClient(parsedURL, opts.HTTPClient),
		opts:   opts,
	}, nil
}

// Info implements model.Adapter.
func (a *Adapter) Info() model.Info {
	return model.Info{Name: a.opts.Model, Provider: ProviderName}
}

// Capabilities implements model.Adapter.
func (a *Adapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		SupportsToolForcing:    false,
		SupportsJSONMode:       true,
		SupportsStreamingTools: false,
		SupportedFieldTypes:    model.AllFieldTypes(),
	}
}

// Execute implements model.Adapter.
func (a *Adapter) Execute(ctx context.Context, req model.Request) (model.RawResponse, error) {
	chatReq, err := a.buildRequest(req, false)
	if err != nil {
		return nil, err
	}

	var final *api.ChatResponse
	err = a.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final = &resp
		return nil
	})
	if err != nil {
		return nil, transportError(err)
	}
	if final == nil {
		return nil, core.NewProviderTransportError(ProviderName, 0, errors.New("empty response"))
	}
	return newResponse(*final), nil
}

// ExecuteStream implements model.Adapter. The request starts on the first Next.
func (a *Adapter) ExecuteStream(ctx context.Context, req model.Request) (model.Stream, error) {
	chatReq, err := a.buildRequest(req, true)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, a.client, chatReq), nil
}

func (a *Adapter) buildRequest(req model.Request, stream bool) (*api.ChatRequest, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	chatReq := &api.ChatRequest{
		Model:    model.ResolveModel(req, a.opts.Model),
		Messages: messages,
		Tools:    buildTools(req.Tools),
		Stream:   func(b bool) *bool { return &b }(stream),
	}
	if req.JSONMode {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	options := map[string]any{}
	p := req.Params
	if p.Temperature != nil {
		options["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		options["top_p"] = *p.TopP
	}
	if p.MaxTokens != nil {
		options["num_predict"] = *p.MaxTokens
	}
	if p.Seed != nil {
		options["seed"] = *p.Seed
	}
	if len(p.Stop) > 0 {
		options["stop"] = p.Stop
	}
	if len(options) > 0 {
		chatReq.Options = options
	}
	return chatReq, nil
}

func buildMessages(in []core.Message) ([]api.Message, error) {
	result := make([]api.Message, 0, len(in))
	for _, m := range in {
		msg := api.Message{Role: string(m.Role)}

		var text strings.Builder
		for _, p := range m.Parts {
			switch part := p.(type) {
			case core.TextPart:
				text.WriteString(part.Text)
			case core.ImagePart:
				if !part.Inline() {
					return nil, core.NewConfigurationError("image", "ollama requires inline image data")
				}
				msg.Images = append(msg.Images, api.ImageData(part.Data))
			case core.DocumentPart:
				if !strings.HasPrefix(part.MediaType, "text/") || !part.Inline() {
					return nil, core.NewConfigurationError("document", "ollama only accepts inline text documents")
				}
				text.Write(part.Data)
			case core.AudioPart:
				return nil, core.NewConfigurationError("audio", "ollama does not accept audio input")
			}
		}
		msg.Content = text.String()

		for _, tc := range m.ToolCalls {
			args := map[string]any{}
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					return nil, core.NewConfigurationError("tool_calls", fmt.Sprintf("arguments of %s are not a JSON object: %v", tc.Name, err))
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{Name: tc.Name, Arguments: args},
			})
		}
		result = append(result, msg)
	}
	return result, nil
}

// buildTools converts JSON schema tool definitions to Ollama's typed tool format.
func buildTools(defs []model.ToolDefinition) []api.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]api.Tool, 0, len(defs))
	for _, d := range defs {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   requiredNames(d.Function.Parameters["required"]),
			Properties: make(map[string]api.ToolProperty),
		}
		if props, ok := d.Function.Parameters["properties"].(map[string]any); ok {
			for name, prop := range props {
				params.Properties[name] = convertProperty(prop)
			}
		}
		if schemaDefs, ok := d.Function.Parameters["$defs"].(map[string]any); ok {
			params.Defs = schemaDefs
		}

		tools = append(tools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        d.Function.Name,
				Description: d.Function.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func convertProperty(v any) api.ToolProperty {
	prop := api.ToolProperty{}

	propMap, ok := v.(map[string]any)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil {
			return prop
		}
		if err := json.Unmarshal(data, &propMap); err != nil {
			return prop
		}
	}

	switch t := propMap["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				types = append(types, s)
			}
		}
		prop.Type = api.PropertyType(types)
	}
	if desc, ok := propMap["description"].(string); ok {
		prop.Description = desc
	}
	switch enum := propMap["enum"].(type) {
	case []any:
		prop.Enum = enum
	case []string:
		for _, e := range enum {
			prop.Enum = append(prop.Enum, e)
		}
	}
	if items, ok := propMap["items"]; ok {
		prop.Items = items
	}
	return prop
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

func transportError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return core.NewProviderTransportError(ProviderName, statusErr.StatusCode, err)
	}
	return core.NewProviderTransportError(ProviderName, 0, err)
}

var _ model.Adapter = (*Adapter)(nil)
