package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wufei-png/wework-robot-opencode/internal/config"
	model "github.com/wufei-png/wework-robot-opencode/internal/model/opencode"
)

const (
	// SessionTitle 是每次提问创建会话时使用的固定标题。
	SessionTitle = "Wework Robot"
	// FallbackReply 是后端不可用时返回给用户的兜底文案。
	FallbackReply = "OpenCode 暂时不可用，请稍后再试。"
	// EmptyMessageHint 是用户消息为空时的提示。
	EmptyMessageHint = "请发送要咨询的内容。"

	agentCheckTimeout = 10 * time.Second
	maxResponseBytes  = 8 << 20
	maxLoggedBytes    = 512
)

// Client 调用 opencode serve 的会话接口，把一条用户消息换成一条回复。
type Client struct {
	baseURL        string
	agentName      string
	username       string
	password       string
	sessionTimeout time.Duration
	messageTimeout time.Duration
	http           *http.Client
}

// NewClient 创建客户端；httpClient 为空时使用默认客户端，超时由每次请求的 context 控制。
func NewClient(cfg config.OpenCodeConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	sessionTimeout := cfg.SessionTimeout
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Second
	}
	messageTimeout := cfg.MessageTimeout
	if messageTimeout <= 0 {
		messageTimeout = 300 * time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		agentName:      cfg.AgentName,
		username:       cfg.Username,
		password:       cfg.Password,
		sessionTimeout: sessionTimeout,
		messageTimeout: messageTimeout,
		http:           httpClient,
	}
}

// AgentName 返回消息路由到的 agent 名称。
func (c *Client) AgentName() string {
	return c.agentName
}

// Ask 返回助手回复；任何失败都降级为兜底文案，不会向调用方返回错误。
func (c *Client) Ask(ctx context.Context, userMessage string) string {
	res := c.Do(ctx, userMessage)
	if res.OK() {
		return res.Reply
	}
	if res.Failure.Kind == FailureEmptyMessage {
		return EmptyMessageHint
	}
	return FallbackReply
}

// Do 依次创建会话、发送消息并提取回复，每一步只尝试一次。
func (c *Client) Do(ctx context.Context, userMessage string) Result {
	text := strings.TrimSpace(userMessage)
	if text == "" {
		return failed("", &Failure{Kind: FailureEmptyMessage, Stage: StageIdle})
	}

	// 入站请求结束不应中断后端调用，每一步只受自身超时约束。
	ctx = context.WithoutCancel(ctx)
	reqID := uuid.NewString()[:8]

	sessionURL := c.baseURL + "/session"
	var session map[string]json.RawMessage
	if f := c.postJSON(ctx, StageSessionRequested, c.sessionTimeout, sessionURL, model.CreateSessionRequest{Title: SessionTitle}, &session); f != nil {
		c.logFailure(reqID, f)
		return failed("", f)
	}

	sessionID := parseSessionID(session["id"])
	if sessionID == "" {
		f := &Failure{Kind: FailureMissingSessionID, Stage: StageSessionRequested, URL: sessionURL, Body: truncate(fmt.Sprint(rawKeys(session)))}
		c.logFailure(reqID, f)
		return failed("", f)
	}
	log.Printf("[opencode] req=%s session created id=%s", reqID, sessionID)

	messageURL := fmt.Sprintf("%s/session/%s/message", c.baseURL, url.PathEscape(sessionID))
	payload := model.MessageRequest{
		Agent: c.agentName,
		Parts: []model.TextPart{{Type: "text", Text: text}},
	}

	start := time.Now()
	var result any
	if f := c.postJSON(ctx, StageMessageSent, c.messageTimeout, messageURL, payload, &result); f != nil {
		c.logFailure(reqID, f)
		return failed(sessionID, f)
	}

	reply := ExtractReplyText(result)
	if reply == "" {
		raw, _ := json.Marshal(result)
		f := &Failure{Kind: FailureNoReply, Stage: StageMessageSent, URL: messageURL, Body: truncate(string(raw)), Elapsed: time.Since(start)}
		c.logFailure(reqID, f)
		return failed(sessionID, f)
	}

	log.Printf("[opencode] req=%s reply extracted session=%s agent=%s elapsed=%s length=%d",
		reqID, sessionID, c.agentName, time.Since(start).Round(time.Millisecond), len(reply))
	return ok(sessionID, reply)
}

// CheckAgent 查询 GET /agent，判断配置的 agent 是否存在。
func (c *Client) CheckAgent(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, agentCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/agent", nil)
	if err != nil {
		return false, fmt.Errorf("build agent request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("list agents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("list agents: unexpected status %d", resp.StatusCode)
	}

	var agents []model.Agent
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&agents); err != nil {
		return false, fmt.Errorf("decode agents: %w", err)
	}

	names := make([]string, 0, len(agents))
	for _, a := range agents {
		if a.Name == c.agentName {
			return true, nil
		}
		names = append(names, a.Name)
	}
	log.Printf("[opencode] agent %q not found, available agents: %v", c.agentName, names)
	return false, nil
}

// postJSON 发送一次 POST 请求并把 2xx 响应解码到 out，失败时返回分类后的 Failure。
func (c *Client) postJSON(ctx context.Context, stage Stage, timeout time.Duration, endpoint string, payload, out any) *Failure {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	fail := func(kind FailureKind, status int, body string, err error) *Failure {
		return &Failure{Kind: kind, Stage: stage, URL: endpoint, Status: status, Body: body, Elapsed: time.Since(start), Err: err}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fail(FailureDecode, 0, "", fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(FailureConnection, 0, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(classifyTransportError(err), 0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(classifyTransportError(err), resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(FailureHTTPStatus, resp.StatusCode, truncate(string(data)), fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fail(FailureDecode, resp.StatusCode, truncate(string(data)), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *Client) logFailure(reqID string, f *Failure) {
	switch f.Kind {
	case FailureConnection:
		log.Printf("[opencode] req=%s connection failed url=%s: %v", reqID, f.URL, f.Err)
	case FailureTimeout:
		log.Printf("[opencode] req=%s request timed out url=%s stage=%s elapsed=%s", reqID, f.URL, f.Stage, f.Elapsed.Round(time.Millisecond))
	case FailureHTTPStatus:
		log.Printf("[opencode] req=%s http error url=%s status=%d body=%s", reqID, f.URL, f.Status, f.Body)
	case FailureDecode:
		log.Printf("[opencode] req=%s undecodable response url=%s status=%d body=%s: %v", reqID, f.URL, f.Status, f.Body, f.Err)
	case FailureMissingSessionID:
		log.Printf("[opencode] req=%s session response has no id, keys=%s", reqID, f.Body)
	case FailureNoReply:
		log.Printf("[opencode] req=%s cannot extract reply text from response: %s", reqID, f.Body)
	default:
		log.Printf("[opencode] req=%s %v", reqID, f)
	}
}

// classifyTransportError 区分超时与其它网络错误。
func classifyTransportError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureConnection
}

// parseSessionID 接受非空字符串或数字形式的 id。
func parseSessionID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil && f != 0 {
			return n.String()
		}
	}
	return ""
}

func rawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func truncate(s string) string {
	if len(s) <= maxLoggedBytes {
		return s
	}
	return s[:maxLoggedBytes] + "...(" + strconv.Itoa(len(s)) + " bytes)"
}
