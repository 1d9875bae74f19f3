// Package llm talks to the LLM sidecar: a gRPC service that owns the actual
// provider SDK and streams back thinking/response chunks. The gateway never
// calls a provider API directly.
package llm

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	pb "github.com/tarsy-labs/agentgw/proto"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Role identifies the speaker of a ConversationMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation, either requested by a prior assistant
// turn (replayed into history) or returned by the current turn.
type ToolCall struct {
	ID       string
	Name     string
	ArgsJSON string
}

// ToolDefinition describes one tool available for this turn, the wire form
// of a toolfactory.ToolHandle.
type ToolDefinition struct {
	Name            string
	Description     string
	InputSchemaJSON string
}

// ConversationMessage is one turn in the message history sent to the LLM.
// pkg/agentgraph builds these from its own Message log; this package stays
// agnostic of how the caller persists conversation state.
type ConversationMessage struct {
	Role       Role
	Content    string
	ToolCallID string
	ToolName   string
	ToolCalls  []ToolCall // set on an assistant message that requested calls
}

// Client wraps the gRPC connection to the LLM sidecar.
type Client struct {
	conn        *grpc.ClientConn
	client      pb.LLMServiceClient
	provider    string
	model       string
	temperature *float32
	maxTokens   *int32
}

// NewClient creates a new LLM client with configuration loaded from the
// environment (GEMINI_PROVIDER, GEMINI_MODEL, GEMINI_TEMPERATURE,
// GEMINI_MAX_TOKENS). Provider/model set here are the process-wide default,
// overridden per call by GenerateStream's modelProvider/model arguments.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LLM service: %w", err)
	}

	provider := os.Getenv("GEMINI_PROVIDER")
	if provider == "" {
		provider = "gemini"
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash-thinking-exp-01-21"
	}

	var temperature *float32
	if tempStr := os.Getenv("GEMINI_TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 32); err == nil {
			temp32 := float32(temp)
			temperature = &temp32
		}
	}

	var maxTokens *int32
	if maxStr := os.Getenv("GEMINI_MAX_TOKENS"); maxStr != "" {
		if max, err := strconv.ParseInt(maxStr, 10, 32); err == nil {
			max32 := int32(max)
			maxTokens = &max32
		}
	}

	log.Printf("LLM Client configured with provider: %s, model: %s", provider, model)

	return &Client{
		conn:        conn,
		client:      pb.NewLLMServiceClient(conn),
		provider:    provider,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// StreamChunk represents a streaming chunk from the LLM.
type StreamChunk struct {
	Content    string
	IsThinking bool
	IsComplete bool
	IsFinal    bool
	Error      string
	// ToolCalls is set instead of (or alongside) Content when the model
	// chose to call tools rather than produce a final answer.
	ToolCalls []ToolCall
}

// GenerateStream streams a response for one agent-graph turn, with tools
// bound for this call only (the agent node's dynamic-binding set). threadID
// is used only for log correlation — the sidecar is stateless per call.
// modelProvider/model override the client's configured default for this
// call only; either left empty falls back to that default.
func (c *Client) GenerateStream(ctx context.Context, threadID, modelProvider, model string, messages []ConversationMessage, tools []ToolDefinition) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 100)
	errs := make(chan error, 1)

	if modelProvider == "" {
		modelProvider = c.provider
	}
	if model == "" {
		model = c.model
	}

	go func() {
		defer close(chunks)
		defer close(errs)

		pbMessages := make([]*pb.Message, len(messages))
		for i, msg := range messages {
			var role pb.Message_Role
			switch msg.Role {
			case RoleSystem:
				role = pb.Message_ROLE_SYSTEM
			case RoleAssistant:
				role = pb.Message_ROLE_ASSISTANT
			case RoleTool:
				role = pb.Message_ROLE_TOOL
			default:
				role = pb.Message_ROLE_USER
			}

			var pbToolCalls []*pb.ToolCall
			for _, tc := range msg.ToolCalls {
				pbToolCalls = append(pbToolCalls, &pb.ToolCall{Id: tc.ID, Name: tc.Name, ArgsJson: tc.ArgsJSON})
			}

			pbMessages[i] = &pb.Message{
				Role:       role,
				Content:    msg.Content,
				ToolCallId: msg.ToolCallID,
				ToolName:   msg.ToolName,
				ToolCalls:  pbToolCalls,
			}
		}

		pbTools := make([]*pb.ToolDefinition, len(tools))
		for i, t := range tools {
			pbTools[i] = &pb.ToolDefinition{
				Name:            t.Name,
				Description:     t.Description,
				InputSchemaJson: t.InputSchemaJSON,
			}
		}

		req := &pb.ThinkingRequest{
			SessionId:   threadID,
			Messages:    pbMessages,
			Provider:    modelProvider,
			Model:       model,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
			Tools:       pbTools,
		}

		stream, err := c.client.GenerateWithThinking(ctx, req)
		if err != nil {
			errs <- fmt.Errorf("failed to call GenerateWithThinking: %w", err)
			return
		}

		log.Printf("Started streaming for thread %s", threadID)

		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				log.Printf("Stream complete for thread %s", threadID)
				return
			}
			if err != nil {
				errs <- fmt.Errorf("stream error: %w", err)
				return
			}

			switch x := chunk.ChunkType.(type) {
			case *pb.ThinkingChunk_Thinking:
				select {
				case chunks <- StreamChunk{
					Content:    x.Thinking.Content,
					IsThinking: true,
					IsComplete: x.Thinking.IsComplete,
				}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}

			case *pb.ThinkingChunk_Response:
				var toolCalls []ToolCall
				for _, tc := range x.Response.ToolCalls {
					toolCalls = append(toolCalls, ToolCall{ID: tc.Id, Name: tc.Name, ArgsJSON: tc.ArgsJson})
				}
				select {
				case chunks <- StreamChunk{
					Content:    x.Response.Content,
					IsThinking: false,
					IsComplete: x.Response.IsComplete,
					IsFinal:    x.Response.IsFinal,
					ToolCalls:  toolCalls,
				}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}

			case *pb.ThinkingChunk_Error:
				select {
				case chunks <- StreamChunk{
					Error: x.Error.Message,
				}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return chunks, errs
}
