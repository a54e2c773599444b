package opencode

import (
	"context"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

// ErrNoUserMessage 表示输入中没有用户消息。
var ErrNoUserMessage = errors.New("no user message in input")

// ChatModel 把 opencode 会话包装成 eino 的 BaseChatModel，可直接接入 compose 链。
// 后端自行维护上下文，这里只转发最后一条用户消息。
type ChatModel struct {
	client *Client
}

// NewChatModel 创建 eino 适配器。
func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

// Generate 把最后一条用户消息发给 opencode，失败时返回 *Failure。
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	text, found := lastUserContent(input)
	if !found {
		return nil, ErrNoUserMessage
	}

	res := m.client.Do(ctx, text)
	if !res.OK() {
		return nil, res.Failure
	}
	return schema.AssistantMessage(res.Reply, nil), nil
}

// Stream 以单个分片返回完整回复，opencode 的 message 接口不支持流式输出。
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func lastUserContent(input []*schema.Message) (string, bool) {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			return input[i].Content, true
		}
	}
	return "", false
}

// NewQueryChain 编译一个以 {"query": ...} 为输入的 eino 链，提示词模板渲染后交给 opencode。
func NewQueryChain(ctx context.Context, client *Client) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(NewChatModel(client))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile opencode chain: %w", err)
	}
	return runnable, nil
}
