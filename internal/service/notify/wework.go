package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/wufei-png/wework-robot-opencode/internal/model/wework"
)

const (
	// MaxContentBytes 是群机器人文本消息的字节上限。
	MaxContentBytes = 2048
	// MessagesPerMinute 是单个群机器人每分钟允许发送的消息数。
	MessagesPerMinute = 20

	sendTimeout     = 10 * time.Second
	maxResponseBody = 64 << 10
)

// Notifier 通过企业微信群机器人 webhook 发送文本消息。
type Notifier struct {
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// Option 调整 Notifier 的默认行为。
type Option func(*Notifier)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		if c != nil {
			n.http = c
		}
	}
}

// WithLimiter 替换默认的 20 条/分钟限流器。
func WithLimiter(l *rate.Limiter) Option {
	return func(n *Notifier) {
		if l != nil {
			n.limiter = l
		}
	}
}

// New 创建 Notifier。
func New(opts ...Option) *Notifier {
	n := &Notifier{
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Every(time.Minute/MessagesPerMinute), MessagesPerMinute),
		timeout: sendTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SendGroupText 向群发送一条文本消息，仅当接口返回 errcode 0 时为 true。
func (n *Notifier) SendGroupText(ctx context.Context, webhookURL, content string) bool {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		log.Printf("[notify] webhook url is empty")
		return false
	}
	if strings.TrimSpace(content) == "" {
		log.Printf("[notify] content is empty, not sending")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		log.Printf("[notify] rate limited: %v", err)
		return false
	}

	payload, err := json.Marshal(wework.GroupTextMessage{
		MsgType: wework.MsgTypeText,
		Text:    wework.GroupText{Content: TruncateUTF8(content, MaxContentBytes)},
	})
	if err != nil {
		log.Printf("[notify] encode payload: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		log.Printf("[notify] build request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		log.Printf("[notify] send failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		log.Printf("[notify] read response: %v", err)
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[notify] unexpected status %d: %s", resp.StatusCode, body)
		return false
	}

	var result wework.GroupSendResult
	if err := json.Unmarshal(body, &result); err != nil {
		log.Printf("[notify] decode response: %v", err)
		return false
	}
	if result.ErrCode == nil || *result.ErrCode != 0 {
		log.Printf("[notify] api error: %s", body)
		return false
	}
	return true
}

// TruncateUTF8 把 s 截断到不超过 limit 字节，且不拆开多字节字符。
func TruncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
