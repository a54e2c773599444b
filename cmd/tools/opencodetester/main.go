package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"

	"github.com/wufei-png/wework-robot-opencode/internal/config"
	"github.com/wufei-png/wework-robot-opencode/internal/service/notify"
	"github.com/wufei-png/wework-robot-opencode/internal/service/opencode"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: ask、chain、check-agent 或 notify")
	text := flag.String("text", "", "发送给 opencode 或群机器人的文本")
	agent := flag.String("agent", "", "覆盖 OPENCODE_AGENT_NAME")
	forward := flag.Bool("forward", false, "ask/chain 模式下把回复转发到 WEWORK_WEBHOOK_URL")
	timeout := flag.Duration("timeout", 0, "覆盖消息接口超时时间")

	flag.Parse()

	if *agent != "" {
		cfg.OpenCode.AgentName = *agent
	}
	if *timeout > 0 {
		cfg.OpenCode.MessageTimeout = *timeout
	}

	client := opencode.NewClient(cfg.OpenCode, &http.Client{})
	ctx := context.Background()

	switch *mode {
	case "ask":
		requireText(*text)
		res := client.Do(ctx, *text)
		if !res.OK() {
			log.Printf("请求失败: kind=%s stage=%s status=%d elapsed=%s", res.Failure.Kind, res.Failure.Stage, res.Failure.Status, res.Failure.Elapsed)
			log.Fatalf("用户将看到: %s", opencode.FallbackReply)
		}
		log.Printf("session=%s", res.SessionID)
		output(ctx, cfg, res.Reply, *forward)

	case "chain":
		requireText(*text)
		chain, err := opencode.NewQueryChain(ctx, client)
		if err != nil {
			log.Fatalf("构建链失败: %v", err)
		}
		start := time.Now()
		msg, err := chain.Invoke(ctx, map[string]any{"query": *text})
		if err != nil {
			log.Fatalf("链执行失败: %v", err)
		}
		if msg.Role != schema.Assistant {
			log.Printf("[WARN] 意外的消息角色: %s", msg.Role)
		}
		log.Printf("链执行完成，用时 %s", time.Since(start).Round(time.Millisecond))
		output(ctx, cfg, msg.Content, *forward)

	case "check-agent":
		found, err := client.CheckAgent(ctx)
		if err != nil {
			log.Fatalf("检查 agent 失败: %v", err)
		}
		if !found {
			log.Fatalf("agent %q 不存在", client.AgentName())
		}
		log.Printf("agent %q 可用", client.AgentName())

	case "notify":
		requireText(*text)
		if !notify.New().SendGroupText(ctx, cfg.Notify.WebhookURL, *text) {
			log.Fatal("群消息发送失败")
		}
		log.Println("群消息发送成功")

	default:
		flag.Usage()
		log.Fatal("请通过 -mode 指定测试模式")
	}
}

func requireText(text string) {
	if strings.TrimSpace(text) == "" {
		flag.Usage()
		log.Fatal("请通过 -text 提供消息内容")
	}
}

func output(ctx context.Context, cfg *config.Config, reply string, forward bool) {
	if _, err := os.Stdout.WriteString(reply + "\n"); err != nil {
		log.Printf("[WARN] 写入标准输出失败: %v", err)
	}
	if !forward {
		return
	}
	if notify.New().SendGroupText(ctx, cfg.Notify.WebhookURL, reply) {
		log.Println("回复已转发到群")
	} else {
		log.Println("[WARN] 回复转发失败")
	}
}
