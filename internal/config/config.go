package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrWeWorkIncomplete 表示回调加解密所需的三项配置不全。
var ErrWeWorkIncomplete = errors.New("WEWORK_TOKEN / WEWORK_ENCODING_AES_KEY / WEWORK_RECEIVE_ID must be configured")

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	WeWork   WeWorkConfig
	OpenCode OpenCodeConfig
	Notify   NotifyConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.WeWork.normalize()
	cfg.OpenCode.normalize()
	cfg.Notify.WebhookURL = strings.TrimSpace(cfg.Notify.WebhookURL)

	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port string `env:"PORT" envDefault:"5000"`
	Addr string
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(host, port string) (string, error) {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return net.JoinHostPort(host, port), nil
}

// WeWorkConfig 描述企业微信「接收消息」配置。
type WeWorkConfig struct {
	Token          string `env:"WEWORK_TOKEN"`
	EncodingAESKey string `env:"WEWORK_ENCODING_AES_KEY"`
	ReceiveID      string `env:"WEWORK_RECEIVE_ID"`
	// CorpID 仅在未设置 WEWORK_RECEIVE_ID 时作为回调接收方 ID。
	CorpID string `env:"WEWORK_CORP_ID"`
}

func (c *WeWorkConfig) normalize() {
	c.Token = strings.TrimSpace(c.Token)
	c.EncodingAESKey = strings.TrimSpace(c.EncodingAESKey)
	c.ReceiveID = strings.TrimSpace(c.ReceiveID)
	c.CorpID = strings.TrimSpace(c.CorpID)
	if c.ReceiveID == "" {
		c.ReceiveID = c.CorpID
	}
}

// Complete 检查加解密所需配置是否齐全。
func (c WeWorkConfig) Complete() error {
	if c.Token == "" || c.EncodingAESKey == "" || c.ReceiveID == "" {
		return ErrWeWorkIncomplete
	}
	return nil
}

// OpenCodeConfig 描述 opencode serve 后端配置。
type OpenCodeConfig struct {
	APIURL         string        `env:"OPENCODE_API_URL" envDefault:"http://127.0.0.1:4096"`
	AgentName      string        `env:"OPENCODE_AGENT_NAME" envDefault:"docs-searcher"`
	Username       string        `env:"OPENCODE_SERVER_USERNAME" envDefault:"opencode"`
	Password       string        `env:"OPENCODE_SERVER_PASSWORD"`
	SessionTimeout time.Duration `env:"OPENCODE_SESSION_TIMEOUT" envDefault:"30s"`
	MessageTimeout time.Duration `env:"OPENCODE_MESSAGE_TIMEOUT" envDefault:"300s"`
	CheckAgent     bool          `env:"OPENCODE_CHECK_AGENT" envDefault:"true"`
}

func (c *OpenCodeConfig) normalize() {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	c.AgentName = strings.TrimSpace(c.AgentName)
	c.Username = strings.TrimSpace(c.Username)
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 300 * time.Second
	}
}

// BasicAuthEnabled 表示是否配置了 opencode serve 的访问密码。
func (c OpenCodeConfig) BasicAuthEnabled() bool {
	return c.Password != ""
}

// NotifyConfig 描述群机器人 webhook 配置。
type NotifyConfig struct {
	WebhookURL string `env:"WEWORK_WEBHOOK_URL" envDefault:"https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=xxx"`
}

// Redacted 返回可安全写入日志的配置摘要，不含 Token、AES 密钥与密码。
func (c *Config) Redacted() string {
	return fmt.Sprintf(
		"addr=%s wework_configured=%t receive_id=%s opencode_url=%s agent=%s basic_auth=%t",
		c.Server.Addr,
		c.WeWork.Complete() == nil,
		c.WeWork.ReceiveID,
		c.OpenCode.APIURL,
		c.OpenCode.AgentName,
		c.OpenCode.BasicAuthEnabled(),
	)
}
