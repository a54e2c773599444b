package opencode

import (
	"fmt"
	"time"
)

// Stage 记录一次 Ask 调用推进到的步骤。
type Stage string

const (
	StageIdle             Stage = "idle"
	StageSessionRequested Stage = "session_requested"
	StageSessionCreated   Stage = "session_created"
	StageMessageSent      Stage = "message_sent"
	StageReplyExtracted   Stage = "reply_extracted"
	StageFallback         Stage = "fallback"
)

// FailureKind 区分后端失败的原因，全部降级为同一兜底文案，但日志中分别记录。
type FailureKind string

const (
	FailureEmptyMessage     FailureKind = "empty_message"
	FailureConnection       FailureKind = "connection"
	FailureTimeout          FailureKind = "timeout"
	FailureHTTPStatus       FailureKind = "http_status"
	FailureDecode           FailureKind = "decode"
	FailureMissingSessionID FailureKind = "missing_session_id"
	FailureNoReply          FailureKind = "no_reply"
)

// Failure 描述一次失败的后端调用。
type Failure struct {
	Kind FailureKind
	// Stage 是失败发生时正在进行的步骤：会话创建失败为 session_requested，
	// 消息发送或回复提取失败为 message_sent。
	Stage   Stage
	URL     string
	Status  int
	Body    string
	Elapsed time.Duration
	Err     error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("opencode %s at %s", f.Kind, f.Stage)
	if f.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", f.Status)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result 是 Do 的显式结果：成功时 Reply 非空，失败时 Failure 非空。
type Result struct {
	Reply     string
	SessionID string
	Stage     Stage
	Failure   *Failure
}

// OK 表示是否成功拿到回复。
func (r Result) OK() bool {
	return r.Failure == nil
}

func ok(sessionID, reply string) Result {
	return Result{Reply: reply, SessionID: sessionID, Stage: StageReplyExtracted}
}

func failed(sessionID string, f *Failure) Result {
	return Result{SessionID: sessionID, Stage: StageFallback, Failure: f}
}
