package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/wufei-png/wework-robot-opencode/internal/model/wework"
)

// ErrInvalidJSON 表示解密后的明文不是合法的 JSON 对象。
var ErrInvalidJSON = errors.New("invalid message json")

// ParseInbound 解析解密后的回调消息。
func ParseInbound(plaintext []byte) (wework.InboundMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(plaintext, &raw); err != nil {
		return wework.InboundMessage{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if raw == nil {
		return wework.InboundMessage{}, fmt.Errorf("%w: null payload", ErrInvalidJSON)
	}

	msg := wework.InboundMessage{
		ToUserName:   stringField(raw, "ToUserName"),
		FromUserName: stringField(raw, "FromUserName"),
		MsgType:      stringField(raw, "MsgType"),
		Content:      stringField(raw, "Content"),
		MsgID:        raw["MsgId"],
		AgentID:      raw["AgentID"],
		Raw:          raw,
	}
	if v, ok := raw["CreateTime"]; ok {
		createTime, err := parseCreateTime(v)
		if err != nil {
			log.Printf("[message] ignore CreateTime %s: %v", v, err)
		}
		msg.CreateTime = createTime
	}
	return msg, nil
}

// parseCreateTime 接受数字或数字字符串形式的秒级时间戳，null 视为缺失。
func parseCreateTime(raw json.RawMessage) (int64, error) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return strconv.ParseInt(n.String(), 10, 64)
}

// ExtractText 返回去除首尾空白后的文本内容。
// MsgType 存在且不是 text、Content 缺失或非字符串、全为空白时返回空串；MsgType 缺失时只看 Content。
func ExtractText(msg wework.InboundMessage) string {
	if msg.Raw == nil {
		if msg.MsgType != "" && msg.MsgType != wework.MsgTypeText {
			return ""
		}
		return strings.TrimSpace(msg.Content)
	}
	if _, present := msg.Raw["MsgType"]; present && stringField(msg.Raw, "MsgType") != wework.MsgTypeText {
		return ""
	}
	return strings.TrimSpace(stringField(msg.Raw, "Content"))
}

// BuildReply 交换收发方并生成文本被动回复。
func BuildReply(inbound wework.InboundMessage, replyText string) wework.OutboundReply {
	return buildReplyAt(inbound, replyText, time.Now())
}

func buildReplyAt(inbound wework.InboundMessage, replyText string, now time.Time) wework.OutboundReply {
	agentID := inbound.AgentID
	if len(agentID) == 0 {
		agentID = json.RawMessage("null")
	}
	return wework.OutboundReply{
		ToUserName:   inbound.FromUserName,
		FromUserName: inbound.ToUserName,
		CreateTime:   now.Unix(),
		MsgType:      wework.MsgTypeText,
		Content:      replyText,
		AgentID:      agentID,
	}
}

// MarshalReply 序列化回复，保留原始中文与 HTML 字符。
func MarshalReply(reply wework.OutboundReply) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(reply); err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// stringField 仅在字段是 JSON 字符串时返回其值。
func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
