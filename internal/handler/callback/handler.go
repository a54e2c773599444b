package callback

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wufei-png/wework-robot-opencode/internal/model/wework"
	"github.com/wufei-png/wework-robot-opencode/internal/service/envelope"
	"github.com/wufei-png/wework-robot-opencode/internal/service/message"
	"github.com/wufei-png/wework-robot-opencode/pkg/utils"
)

const (
	// Path 是企业微信回调地址。
	Path = "/webhook/wework"
	// NonTextReply 是无法提取文本时的固定回复。
	NonTextReply = "请发送文本消息。"

	maxBodyBytes = 1 << 20
)

// Asker 把一条用户消息换成一条回复文本，实现方自行兜底，不返回错误。
type Asker interface {
	Ask(ctx context.Context, userMessage string) string
}

// Handler 处理企业微信自建应用的回调。
type Handler struct {
	codec envelope.Codec
	asker Asker
	now   func() time.Time
}

// New 创建回调处理器
func New(codec envelope.Codec, asker Asker) *Handler {
	return &Handler{
		codec: codec,
		asker: asker,
		now:   time.Now,
	}
}

// RegisterRoutes 注册回调路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(Path, h.handleVerify)
	r.Post(Path, h.handleMessage)
}

func envelopeFrom(r *http.Request) wework.CallbackEnvelope {
	q := r.URL.Query()
	return wework.CallbackEnvelope{
		Signature: q.Get("msg_signature"),
		Timestamp: q.Get("timestamp"),
		Nonce:     q.Get("nonce"),
		EchoStr:   q.Get("echostr"),
	}
}

// handleVerify 处理 URL 校验，原样返回解密后的 echostr。
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	env := envelopeFrom(r)
	if env.EchoStr == "" {
		utils.RespondText(w, http.StatusBadRequest, "missing echostr")
		return
	}

	plain, err := h.codec.VerifyChallenge(env.Signature, env.Timestamp, env.Nonce, env.EchoStr)
	if err != nil {
		if h.respondNotConfigured(w, err) {
			return
		}
		log.Printf("[callback] verify url failed, code=%d: %v", envelope.Code(err), err)
		utils.RespondText(w, http.StatusForbidden, "verify failed")
		return
	}
	utils.RespondText(w, http.StatusOK, plain)
}

// handleMessage 解密消息，调用后端并返回加密后的被动回复。
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	env := envelopeFrom(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondText(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		log.Printf("[callback] read body failed: %v", err)
		utils.RespondText(w, http.StatusBadRequest, "missing body")
		return
	}
	if len(body) == 0 {
		utils.RespondText(w, http.StatusBadRequest, "missing body")
		return
	}
	env.Body = body

	plain, err := h.codec.Decrypt(env.Body, env.Signature, env.Timestamp, env.Nonce)
	if err != nil {
		if h.respondNotConfigured(w, err) {
			return
		}
		log.Printf("[callback] decrypt failed, code=%d: %v", envelope.Code(err), err)
		utils.RespondText(w, http.StatusForbidden, "decrypt failed")
		return
	}

	inbound, err := message.ParseInbound(plain)
	if err != nil {
		log.Printf("[callback] %v", err)
		utils.RespondText(w, http.StatusBadRequest, "invalid message json")
		return
	}

	replyText := NonTextReply
	if text := message.ExtractText(inbound); text != "" {
		log.Printf("[callback] message from=%s type=%s length=%d", inbound.FromUserName, inbound.MsgType, len(text))
		replyText = h.asker.Ask(r.Context(), text)
	} else {
		log.Printf("[callback] no text content from=%s type=%s", inbound.FromUserName, inbound.MsgType)
	}

	reply := message.BuildReply(inbound, replyText)
	reply.CreateTime = h.now().Unix()
	replyJSON, err := message.MarshalReply(reply)
	if err != nil {
		log.Printf("[callback] marshal reply failed: %v", err)
		utils.RespondText(w, http.StatusInternalServerError, "encrypt failed")
		return
	}

	encrypted, err := h.codec.Encrypt(replyJSON, envelope.NewNonce(), envelope.NewTimestamp(h.now()))
	if err != nil {
		if h.respondNotConfigured(w, err) {
			return
		}
		log.Printf("[callback] encrypt failed, code=%d: %v", envelope.Code(err), err)
		utils.RespondText(w, http.StatusInternalServerError, "encrypt failed")
		return
	}
	utils.RespondRawJSON(w, http.StatusOK, encrypted)
}

func (h *Handler) respondNotConfigured(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, envelope.ErrNotConfigured) {
		return false
	}
	log.Printf("[callback] service not configured: %v", err)
	utils.RespondText(w, http.StatusInternalServerError, "service not configured")
	return true
}
