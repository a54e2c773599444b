// Package wxbizjson 实现企业微信回调的 JSON 包体协议（WXBizJsonMsgCrypt）。
//
// 签名与 AES-CBC 加解密（random(16) | msg_len(4, 大端) | msg | receiveid）
// 由 silenceper/wechat 的 util 包完成，这里只负责 JSON 封装、接收方校验与平台错误码。
package wxbizjson

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/silenceper/wechat/v2/util"
)

// 平台定义的错误码。
const (
	OK                     = 0
	ValidateSignatureError = -40001
	ParseJSONError         = -40002
	ComputeSignatureError  = -40003
	IllegalAesKey          = -40004
	ValidateCorpidError    = -40005
	EncryptAESError        = -40006
	DecryptAESError        = -40007
	IllegalBuffer          = -40008
	EncodeBase64Error      = -40009
	DecodeBase64Error      = -40010
	GenReturnJSONError     = -40011
)

const randLength = 16

// Error 携带平台错误码。
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wxbizjson: code %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("wxbizjson: code %d", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code int, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Crypt 持有回调配置中的 Token、AES 密钥与接收方 ID。
type Crypt struct {
	token     string
	key       []byte
	receiveID string
	random    io.Reader
}

// NewCrypt 校验 EncodingAESKey 并返回可并发使用的 Crypt。
func NewCrypt(token, encodingAESKey, receiveID string) (*Crypt, error) {
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, newError(IllegalAesKey, err)
	}
	if len(key) != 32 {
		return nil, newError(IllegalAesKey, fmt.Errorf("aes key length %d", len(key)))
	}
	return &Crypt{
		token:     token,
		key:       key,
		receiveID: receiveID,
		random:    rand.Reader,
	}, nil
}

// Signature 计算回调签名。
func Signature(token, timestamp, nonce, encrypt string) string {
	return util.Signature(token, timestamp, nonce, encrypt)
}

// VerifyURL 校验回调 URL 并返回解密后的 echostr。
func (c *Crypt) VerifyURL(msgSignature, timestamp, nonce, echoStr string) (string, error) {
	if err := c.verifySignature(msgSignature, timestamp, nonce, echoStr); err != nil {
		return "", err
	}
	plain, err := c.decrypt(echoStr)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

type inboundEnvelope struct {
	Encrypt string `json:"encrypt"`
}

// DecryptMsg 校验签名并解密 POST 包体中的 encrypt 字段。
func (c *Crypt) DecryptMsg(postData []byte, msgSignature, timestamp, nonce string) ([]byte, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(postData, &env); err != nil {
		return nil, newError(ParseJSONError, err)
	}
	if env.Encrypt == "" {
		return nil, newError(ParseJSONError, fmt.Errorf("encrypt field missing"))
	}
	if err := c.verifySignature(msgSignature, timestamp, nonce, env.Encrypt); err != nil {
		return nil, err
	}
	return c.decrypt(env.Encrypt)
}

// Envelope 是被动回复的密文包体。
type Envelope struct {
	Encrypt      string `json:"encrypt"`
	MsgSignature string `json:"msgsignature"`
	Timestamp    string `json:"timestamp"`
	Nonce        string `json:"nonce"`
}

// EncryptMsg 加密回复明文并生成带签名的 JSON 包体。
func (c *Crypt) EncryptMsg(reply []byte, nonce, timestamp string) ([]byte, error) {
	encrypted, err := c.encrypt(reply)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(Envelope{
		Encrypt:      encrypted,
		MsgSignature: Signature(c.token, timestamp, nonce, encrypted),
		Timestamp:    timestamp,
		Nonce:        nonce,
	})
	if err != nil {
		return nil, newError(GenReturnJSONError, err)
	}
	return out, nil
}

func (c *Crypt) verifySignature(msgSignature, timestamp, nonce, encrypt string) error {
	expected := Signature(c.token, timestamp, nonce, encrypt)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(msgSignature)) != 1 {
		return newError(ValidateSignatureError, nil)
	}
	return nil
}

func (c *Crypt) encrypt(msg []byte) (encoded string, err error) {
	random := make([]byte, randLength)
	if _, err := io.ReadFull(c.random, random); err != nil {
		return "", newError(EncryptAESError, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = newError(EncryptAESError, fmt.Errorf("%v", r))
		}
	}()
	ciphertext := util.AESEncryptMsg(random, msg, c.receiveID, c.key)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (c *Crypt) decrypt(encoded string) (msg []byte, err error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, newError(DecodeBase64Error, err)
	}

	defer func() {
		if r := recover(); r != nil {
			msg, err = nil, newError(DecryptAESError, fmt.Errorf("%v", r))
		}
	}()
	_, msg, receiveID, err := util.AESDecryptMsg(ciphertext, c.key)
	if err != nil {
		return nil, newError(DecryptAESError, err)
	}
	if subtle.ConstantTimeCompare(receiveID, []byte(c.receiveID)) != 1 {
		return nil, newError(ValidateCorpidError, nil)
	}
	return msg, nil
}
