// Package openai provides a model.Adapter backed by the OpenAI Chat
// Completions API (including streaming, forced tool choice and JSON mode). It
// translates funcn's normalized requests into the SDK's message format and
// exposes responses as the openai raw variants.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ProviderName is the registry key of this adapter.
const ProviderName = "openai"

// Options configure the OpenAI adapter.
// Request level model.Params take precedence over these defaults.
type Options struct {
	Model               string
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	// MaxRetries is handed to the SDK. It defaults to 0 so that retries are
	// owned by the retry package.
	MaxRetries int
}

// Adapter wraps the OpenAI Chat Completions API behind model.Adapter.
type Adapter struct {
	client *openai.Client
	opts   Options
}

// NewAdapter creates a new OpenAI adapter using the official client.
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

	client := openai.NewClient(clientOpts...)
	return &Adapter{client: &client, opts: opts}
}

// NewAdapterFromClient creates a new OpenAI adapter from an existing client.
func NewAdapterFromClient(client *openai.Client, optFns ...func(o *Options)) *Adapter {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
	}
}

// Info implements model.Adapter.
func (a *Adapter) Info() model.Info {
	return model.Info{Name: a.opts.Model, Provider: ProviderName}
}

// Capabilities implements model.Adapter.
func (a *Adapter) Capabilities() model.Capabilities {
	return model.Capabilities{
		SupportsToolForcing:    true,
		SupportsJSONMode:       true,
		SupportsStreamingTools: true,
		SupportedFieldTypes:    model.AllFieldTypes(),
	}
}

// Execute implements model.Adapter.
func (a *Adapter) Execute(ctx context.Context, req model.Request) (model.RawResponse, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, transportError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewProviderTransportError(ProviderName, 0, errors.New("no choices returned"))
	}
	return &Response{Completion: resp}, nil
}

// ExecuteStream implements model.Adapter. The HTTP request is sent on the
// first call to Next.
func (a *Adapter) ExecuteStream(ctx context.Context, req model.Request) (model.Stream, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	return &stream{ctx: ctx, client: a.client, params: params, open: map[int]bool{}, last: -1}, nil
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (a *Adapter) buildParams(req model.Request) (openai.ChatCompletionNewParams, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               model.ResolveModel(req, a.opts.Model),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	}
	p := req.Params
	if p.Temperature != nil {
		params.Temperature = openai.Float(*p.Temperature)
	}
	if p.TopP != nil {
		params.TopP = openai.Float(*p.TopP)
	}
	if p.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(*p.MaxTokens)
	}
	if p.Seed != nil {
		params.Seed = openai.Int(*p.Seed)
	}
	if len(p.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: p.Stop}
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	if len(req.Tools) == 0 {
		return params, nil
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	if req.ForceTool != "" {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: req.ForceTool},
			},
		}
	}
	return params, nil
}

// buildMessages converts normalized messages into OpenAI chat messages. Tool
// results follow the assistant message that issued them, as in the history.
func buildMessages(in []core.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text()))
		case core.RoleUser:
			msg, err := buildUserMessage(m)
			if err != nil {
				return nil, err
			}
			messages = append(messages, msg)
		case core.RoleAssistant:
			messages = append(messages, buildAssistantMessage(m))
		case core.RoleTool:
			messages = append(messages, openai.ToolMessage(m.Text(), m.ToolCallID))
		default:
			return nil, core.NewConfigurationError("messages", fmt.Sprintf("unsupported role %q", m.Role))
		}
	}
	return messages, nil
}

func buildUserMessage(m core.Message) (openai.ChatCompletionMessageParamUnion, error) {
	textOnly := true
	for _, p := range m.Parts {
		if p.Kind() != core.PartText {
			textOnly = false
			break
		}
	}
	if textOnly {
		return openai.UserMessage(m.Text()), nil
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch v := p.(type) {
		case core.TextPart:
			parts = append(parts, openai.TextContentPart(v.Text))
		case core.ImagePart:
			url := v.URL
			if v.Inline() {
				url = dataURL(v.MediaType, v.Data)
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
		case core.AudioPart:
			if !v.Inline() {
				return openai.ChatCompletionMessageParamUnion{}, core.NewConfigurationError("audio", "openai requires inline audio data")
			}
			parts = append(parts, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   base64.StdEncoding.EncodeToString(v.Data),
				Format: audioFormat(v.MediaType),
			}))
		case core.DocumentPart:
			if strings.HasPrefix(v.MediaType, "text/") && v.Inline() {
				parts = append(parts, openai.TextContentPart(string(v.Data)))
				continue
			}
			if !v.Inline() {
				return openai.ChatCompletionMessageParamUnion{}, core.NewConfigurationError("document", "openai requires inline document data")
			}
			file := openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(dataURL(v.MediaType, v.Data)),
			}
			if v.Name != "" {
				file.Filename = openai.String(v.Name)
			}
			parts = append(parts, openai.FileContentPart(file))
		}
	}
	return openai.UserMessage(parts), nil
}

func buildAssistantMessage(m core.Message) openai.ChatCompletionMessageParamUnion {
	text := m.Text()
	if len(m.ToolCalls) == 0 {
		return openai.AssistantMessage(text)
	}
	toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
	for i, tc := range m.ToolCalls {
		toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		}
	}
	msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
	if text != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func dataURL(mediaType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}

func audioFormat(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	default:
		return "wav"
	}
}

// transportError classifies SDK errors as retryable or fatal transport errors.
func transportError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return core.NewProviderTransportError(ProviderName, apiErr.StatusCode, err)
	}
	return core.NewProviderTransportError(ProviderName, 0, err)
}

var _ model.Adapter = (*Adapter)(nil)
