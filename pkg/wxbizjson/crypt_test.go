package wxbizjson

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken     = "QDG6eK"
	testReceiveID = "wx5823bf96d3bd56c7"
)

func testAESKey() string {
	key := bytes.Repeat([]byte{0x5a, 0x13, 0x77, 0xc1}, 8)
	return strings.TrimSuffix(base64.StdEncoding.EncodeToString(key), "=")
}

func newTestCrypt(t *testing.T, receiveID string) *Crypt {
	t.Helper()
	c, err := NewCrypt(testToken, testAESKey(), receiveID)
	require.NoError(t, err)
	return c
}

func codeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return OK
}

func TestNewCryptRejectsBadKey(t *testing.T) {
	_, err := NewCrypt(testToken, "short", testReceiveID)
	require.Error(t, err)
	assert.Equal(t, IllegalAesKey, codeOf(err))

	_, err = NewCrypt(testToken, "!!!not-base64!!!", testReceiveID)
	require.Error(t, err)
	assert.Equal(t, IllegalAesKey, codeOf(err))
}

func TestSignatureIsOrderIndependent(t *testing.T) {
	a := Signature("token", "1409659813", "1372623149", "cipher")
	b := Signature("cipher", "1372623149", "token", "1409659813")
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCrypt(t, testReceiveID)
	plain := []byte(`{"ToUserName":"lisi","Content":"文档在 docs/README.md"}`)

	envelope, err := c.EncryptMsg(plain, "nonce-1", "1700000000")
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(envelope, &env))
	assert.Equal(t, "1700000000", env.Timestamp)
	assert.Equal(t, "nonce-1", env.Nonce)
	assert.Equal(t, Signature(testToken, env.Timestamp, env.Nonce, env.Encrypt), env.MsgSignature)

	got, err := c.DecryptMsg(envelope, env.MsgSignature, env.Timestamp, env.Nonce)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestRoundTripAcrossLengths(t *testing.T) {
	c := newTestCrypt(t, testReceiveID)
	for _, n := range []int{0, 1, 11, 12, 31, 32, 33, 500} {
		plain := bytes.Repeat([]byte("x"), n)
		encrypted, err := c.encrypt(plain)
		require.NoError(t, err)
		got, err := c.decrypt(encrypted)
		require.NoError(t, err, "length %d", n)
		assert.Equal(t, plain, got, "length %d", n)
	}
}

func TestVerifyURL(t *testing.T) {
	c := newTestCrypt(t, testReceiveID)
	echo, err := c.encrypt([]byte("1616140317555161061"))
	require.NoError(t, err)
	sig := Signature(testToken, "1409659589", "263014780", echo)

	got, err := c.VerifyURL(sig, "1409659589", "263014780", echo)
	require.NoError(t, err)
	assert.Equal(t, "1616140317555161061", got)

	_, err = c.VerifyURL("bad-signature", "1409659589", "263014780", echo)
	assert.Equal(t, ValidateSignatureError, codeOf(err))
}

func TestDecryptMsgErrors(t *testing.T) {
	c := newTestCrypt(t, testReceiveID)
	envelope, err := c.EncryptMsg([]byte("hello"), "n", "1")
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(envelope, &env))

	tests := []struct {
		name     string
		crypt    *Crypt
		body     []byte
		sig      string
		wantCode int
	}{
		{name: "tampered signature", crypt: c, body: envelope, sig: strings.Repeat("0", 40), wantCode: ValidateSignatureError},
		{name: "not json", crypt: c, body: []byte("<xml/>"), sig: env.MsgSignature, wantCode: ParseJSONError},
		{name: "missing encrypt", crypt: c, body: []byte(`{"tousername":"x"}`), sig: env.MsgSignature, wantCode: ParseJSONError},
		{name: "foreign receive id", crypt: newTestCrypt(t, "other-corp"), body: envelope, sig: env.MsgSignature, wantCode: ValidateCorpidError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.crypt.DecryptMsg(tt.body, tt.sig, env.Timestamp, env.Nonce)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, codeOf(err))
		})
	}
}

func TestDecryptRejectsMalformedCiphertext(t *testing.T) {
	c := newTestCrypt(t, testReceiveID)

	_, err := c.decrypt("%%%")
	assert.Equal(t, DecodeBase64Error, codeOf(err))

	_, err = c.decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Equal(t, DecryptAESError, codeOf(err))
}

// 企业微信官方 SDK 示例中的 URL 校验数据。
func TestVerifyURLOfficialSample(t *testing.T) {
	c, err := NewCrypt("QDG6eK", "jWmYm7qr5nMoAUwZRjGtBxmz3KA1tkAj3ykkR6q2B2C", "wx5823bf96d3bd56c7")
	require.NoError(t, err)

	echo := "P9nAzCzyDtyTWESHep1vC5X9xho/qYX3Zpb4yKa9SKld1DsH3Iyt3tP3zNdtp+4RPcs8TgAE7OaBO+FZXvnaqQ=="
	assert.Equal(t, "5c45ff5e21c57e6ad56bac8758b79b1d9ac89fd3", Signature("QDG6eK", "1409659589", "263014780", echo))

	got, err := c.VerifyURL("5c45ff5e21c57e6ad56bac8758b79b1d9ac89fd3", "1409659589", "263014780", echo)
	require.NoError(t, err)
	assert.Equal(t, "1616140317555161061", got)
}

// 固定随机串下的密文，与 openssl aes-256-cbc -nopad 的结果逐字节一致。
func TestEncryptKnownAnswer(t *testing.T) {
	c := newTestCrypt(t, "wwcorp")
	c.random = strings.NewReader("aaaabbbbccccdddd")

	out, err := c.EncryptMsg([]byte("hello world"), "1372623149", "1409659813")
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, "WhV0L1YdkX3hXGUivG3eM9fwg/G0ULulQGla08Xdjloz8fg5ggRSuc4qybGxF811aY1aVlFEBhDHtrXsdx7jMA==", env.Encrypt)
	assert.Equal(t, "41c7d66e87136c16594d82373e02d93059f057c4", env.MsgSignature)

	plain, err := c.decrypt(env.Encrypt)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(plain))
}
