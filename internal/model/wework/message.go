package wework

import "encoding/json"

// MsgTypeText 是唯一携带可用文本内容的消息类型。
const MsgTypeText = "text"

// CallbackEnvelope 汇总一次回调请求的传输层字段。
type CallbackEnvelope struct {
	Signature string
	Timestamp string
	Nonce     string
	EchoStr   string
	Body      []byte
}

// InboundMessage 是解密后的回调消息。
type InboundMessage struct {
	ToUserName   string          `json:"ToUserName"`
	FromUserName string          `json:"FromUserName"`
	CreateTime   int64           `json:"CreateTime,omitempty"`
	MsgType      string          `json:"MsgType"`
	Content      string          `json:"Content"`
	MsgID        json.RawMessage `json:"MsgId,omitempty"`
	AgentID      json.RawMessage `json:"AgentID"`

	// Raw 保留原始字段，用于判断 Content 的实际类型。
	Raw map[string]json.RawMessage `json:"-"`
}

// OutboundReply 是被动回复的明文结构，序列化后再加密。
type OutboundReply struct {
	ToUserName   string          `json:"ToUserName"`
	FromUserName string          `json:"FromUserName"`
	CreateTime   int64           `json:"CreateTime"`
	MsgType      string          `json:"MsgType"`
	Content      string          `json:"Content"`
	AgentID      json.RawMessage `json:"AgentID"`
}

// GroupTextMessage 是群机器人 webhook 的文本消息。
type GroupTextMessage struct {
	MsgType string    `json:"msgtype"`
	Text    GroupText `json:"text"`
}

// GroupText 文本消息内容
type GroupText struct {
	Content string `json:"content"`
}

// GroupSendResult 是群机器人接口的返回体。
type GroupSendResult struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}
