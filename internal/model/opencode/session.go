package opencode

// ChatSession 是 opencode 为一次提问创建的远端会话，仅在单个请求内使用。
type ChatSession struct {
	ID string `json:"id"`
}

// CreateSessionRequest 创建会话的请求体
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// TextPart 消息中的文本片段
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessageRequest 向会话发送消息的请求体
type MessageRequest struct {
	Agent string     `json:"agent"`
	Parts []TextPart `json:"parts"`
}

// Agent 是 GET /agent 返回列表中的一项。
type Agent struct {
	Name string `json:"name"`
}
