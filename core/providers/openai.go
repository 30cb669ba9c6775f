package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-5.2-codex"

// OpenAIProvider implements Provider for OpenAI models via the
// Responses API.
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates an OpenAI adapter from config.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("openai config: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client: &client,
		config: config,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return string(ProviderTypeOpenAI)
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	result, err := p.client.Responses.New(ctx, p.buildResponseParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	return p.convertResponse(result), nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req *Request, handler StreamHandler) error {
	stream := p.client.Responses.NewStreaming(ctx, p.buildResponseParams(req))

	if err := handler(&StreamChunk{
		Index:     0,
		Type:      ChunkTypeStart,
		Timestamp: time.Now(),
	}); err != nil {
		return err
	}

	var chunkIndex int
	toolCallBuilders := make(map[string]*ToolCallChunk)
	var stopReason StopReason
	var usage *Usage

	for stream.Next() {
		event := stream.Current()
		chunkIndex++

		switch ev := event.AsAny().(type) {
		case responses.ResponseTextDeltaEvent:
			if ev.Delta == "" {
				continue
			}
			if err := handler(&StreamChunk{
				Index:     chunkIndex,
				Type:      ChunkTypeText,
				Text:      ev.Delta,
				Timestamp: time.Now(),
			}); err != nil {
				return err
			}
		case responses.ResponseOutputItemAddedEvent:
			if ev.Item.Type != "function_call" {
				continue
			}
			toolCall := &ToolCallChunk{ID: ev.Item.ID, Name: ev.Item.Name}
			toolCallBuilders[ev.Item.ID] = toolCall
			if err := handler(&StreamChunk{
				Index:     chunkIndex,
				Type:      ChunkTypeToolStart,
				ToolCall:  toolCall,
				Timestamp: time.Now(),
			}); err != nil {
				return err
			}
		case responses.ResponseFunctionCallArgumentsDeltaEvent:
			if ev.Delta == "" {
				continue
			}
			if err := handler(&StreamChunk{
				Index: chunkIndex,
				Type:  ChunkTypeToolDelta,
				ToolCall: &ToolCallChunk{
					ID:             ev.ItemID,
					ArgumentsDelta: ev.Delta,
				},
				Timestamp: time.Now(),
			}); err != nil {
				return err
			}
		case responses.ResponseOutputItemDoneEvent:
			if ev.Item.Type != "function_call" {
				continue
			}
			if err := handler(&StreamChunk{
				Index:     chunkIndex,
				Type:      ChunkTypeToolEnd,
				ToolCall:  &ToolCallChunk{ID: ev.Item.ID},
				Timestamp: time.Now(),
			}); err != nil {
				return err
			}
		case responses.ResponseCompletedEvent:
			u := p.convertUsage(ev.Response)
			usage = &u
			stopReason = StopReasonEndTurn
			if len(toolCallBuilders) > 0 {
				stopReason = StopReasonToolUse
			}
		case responses.ResponseIncompleteEvent:
			u := p.convertUsage(ev.Response)
			usage = &u
			stopReason = p.convertIncompleteReason(ev.Response.IncompleteDetails.Reason)
		case responses.ResponseErrorEvent:
			handler(&StreamChunk{
				Index:     chunkIndex,
				Type:      ChunkTypeError,
				Text:      ev.Message,
				Timestamp: time.Now(),
			})
			return fmt.Errorf("openai stream: %s", ev.Message)
		}
	}

	if err := stream.Err(); err != nil {
		handler(&StreamChunk{
			Index:     chunkIndex + 1,
			Type:      ChunkTypeError,
			Text:      err.Error(),
			Timestamp: time.Now(),
		})
		return fmt.Errorf("openai stream: %w", err)
	}

	if usage == nil {
		usage = &Usage{}
	}
	if stopReason == "" {
		stopReason = StopReasonEndTurn
	}

	return handler(&StreamChunk{
		Index:      chunkIndex + 1,
		Type:       ChunkTypeEnd,
		StopReason: stopReason,
		Usage:      usage,
		Timestamp:  time.Now(),
	})
}

func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) buildResponseParams(req *Request) responses.ResponseNewParams {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: p.convertMessages(req.Messages, req.SystemPrompt),
		},
		MaxOutputTokens: openai.Int(int64(maxTokens)),
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if p.config.Temperature > 0 {
		params.Temperature = openai.Float(p.config.Temperature)
	}

	if len(req.Tools) > 0 {
		params.Tools = p.convertTools(req.Tools)
	}

	return params
}

func (p *OpenAIProvider) convertMessages(messages []Message, systemPrompt string) responses.ResponseInputParam {
	result := make(responses.ResponseInputParam, 0, len(messages)+1)

	if systemPrompt != "" {
		result = append(result, responses.ResponseInputItemParamOfMessage(systemPrompt, responses.EasyInputMessageRoleSystem))
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleSystem))
		case RoleUser:
			result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		case RoleAssistant:
			result = append(result, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
		case RoleTool:
			result = append(result, responses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolCallID, msg.Content))
		}
	}

	return result
}

func (p *OpenAIProvider) convertTools(tools []Tool) []responses.ToolUnionParam {
	result := make([]responses.ToolUnionParam, len(tools))
	for i, tool := range tools {
		result[i] = responses.ToolParamOfFunction(tool.Name, ensureObjectType(tool.Parameters), true)
		if tool.Description != "" {
			desc := openai.String(tool.Description)
			function := result[i].OfFunction
			function.Description = desc
			result[i].OfFunction = function
		}
	}
	return result
}

func (p *OpenAIProvider) convertResponse(result *responses.Response) *Response {
	if result == nil {
		return &Response{StopReason: StopReasonError}
	}

	response := &Response{
		Content:    result.OutputText(),
		Model:      string(result.Model),
		StopReason: StopReasonEndTurn,
		Usage:      p.convertUsage(*result),
	}

	if result.IncompleteDetails.Reason != "" {
		response.StopReason = p.convertIncompleteReason(result.IncompleteDetails.Reason)
	}
	if result.Error.Message != "" {
		response.StopReason = StopReasonError
	}

	for _, item := range result.Output {
		if item.Type == "function_call" {
			response.ToolCalls = append(response.ToolCalls, ToolCall{
				ID:        item.ID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	if len(response.ToolCalls) > 0 && response.StopReason == StopReasonEndTurn {
		response.StopReason = StopReasonToolUse
	}

	return response
}

func (p *OpenAIProvider) convertUsage(result responses.Response) Usage {
	return Usage{
		InputTokens:  int(result.Usage.InputTokens),
		OutputTokens: int(result.Usage.OutputTokens),
		TotalTokens:  int(result.Usage.TotalTokens),
	}
}

func (p *OpenAIProvider) convertIncompleteReason(reason string) StopReason {
	switch reason {
	case "max_output_tokens":
		return StopReasonMaxTokens
	case "content_filter":
		return StopReasonError
	default:
		return StopReasonEndTurn
	}
}

func ensureObjectType(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object"}
	}
	if _, hasType := params["type"]; !hasType {
		params["type"] = "object"
	}
	return params
}
