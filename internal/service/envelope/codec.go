package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wufei-png/wework-robot-opencode/internal/config"
	"github.com/wufei-png/wework-robot-opencode/pkg/wxbizjson"
)

var (
	ErrVerifyFailed  = errors.New("verify failed")
	ErrDecryptFailed = errors.New("decrypt failed")
	ErrEncryptFailed = errors.New("encrypt failed")
	ErrNotConfigured = errors.New("wework callback not configured")
)

// Codec 封装回调信封的校验与加解密，便于在测试中替换。
type Codec interface {
	VerifyChallenge(signature, timestamp, nonce, echoStr string) (string, error)
	Decrypt(body []byte, signature, timestamp, nonce string) ([]byte, error)
	Encrypt(plaintext []byte, nonce, timestamp string) ([]byte, error)
}

// Primitive 是平台加解密库暴露的操作，*wxbizjson.Crypt 满足该接口。
type Primitive interface {
	VerifyURL(msgSignature, timestamp, nonce, echoStr string) (string, error)
	DecryptMsg(postData []byte, msgSignature, timestamp, nonce string) ([]byte, error)
	EncryptMsg(reply []byte, nonce, timestamp string) ([]byte, error)
}

// Service 基于 Primitive 实现 Codec。
type Service struct {
	crypt Primitive
}

// New 按企业微信配置构建 Codec；配置不全或密钥非法时返回 ErrNotConfigured。
func New(cfg config.WeWorkConfig) (*Service, error) {
	if err := cfg.Complete(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	crypt, err := wxbizjson.NewCrypt(cfg.Token, cfg.EncodingAESKey, cfg.ReceiveID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	return NewWithPrimitive(crypt), nil
}

// NewWithPrimitive 使用给定的加解密实现创建 Service。
func NewWithPrimitive(crypt Primitive) *Service {
	return &Service{crypt: crypt}
}

// VerifyChallenge 校验 URL 并返回明文 echostr。
func (s *Service) VerifyChallenge(signature, timestamp, nonce, echoStr string) (string, error) {
	plain, err := s.crypt.VerifyURL(signature, timestamp, nonce, echoStr)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVerifyFailed, err)
	}
	return plain, nil
}

// Decrypt 校验签名并解密 POST 包体。
func (s *Service) Decrypt(body []byte, signature, timestamp, nonce string) ([]byte, error) {
	plain, err := s.crypt.DecryptMsg(body, signature, timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
	}
	if plain == nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

// Encrypt 加密回复明文，返回 JSON 信封。
func (s *Service) Encrypt(plaintext []byte, nonce, timestamp string) ([]byte, error) {
	out, err := s.crypt.EncryptMsg(plaintext, nonce, timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncryptFailed, err)
	}
	if len(out) == 0 {
		return nil, ErrEncryptFailed
	}
	return out, nil
}

type unconfigured struct {
	err error
}

// Unconfigured 返回一个所有操作都报配置错误的 Codec，使启动时的配置问题在首次回调时暴露。
func Unconfigured(err error) Codec {
	if err == nil {
		err = ErrNotConfigured
	} else if !errors.Is(err, ErrNotConfigured) {
		err = fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	return unconfigured{err: err}
}

func (u unconfigured) VerifyChallenge(string, string, string, string) (string, error) {
	return "", u.err
}

func (u unconfigured) Decrypt([]byte, string, string, string) ([]byte, error) {
	return nil, u.err
}

func (u unconfigured) Encrypt([]byte, string, string) ([]byte, error) {
	return nil, u.err
}

// NewNonce 生成回复用的随机 nonce：8 字节随机数的十六进制串。
func NewNonce() string {
	b := make([]byte, 8)
	// crypto/rand.Read 失败时直接终止进程，不会返回错误
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewTimestamp 返回 Unix 秒级时间戳字符串。
func NewTimestamp(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

// Code 提取底层加解密库的错误码，仅用于日志。
func Code(err error) int {
	var e *wxbizjson.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return wxbizjson.OK
}
