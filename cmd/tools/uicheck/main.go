package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/config"
	"github.com/zhouzirui/ollama-tavern/internal/logging"
	"github.com/zhouzirui/ollama-tavern/internal/verify"
)

func main() {
	url := flag.String("url", "http://localhost:8080/", "正在运行的服务地址")
	controlURL := flag.String("control", "", "已有 Chrome 的 DevTools 地址，留空则自动启动")
	bin := flag.String("chrome", "", "Chrome 可执行文件路径")
	headful := flag.Bool("headful", false, "显示浏览器窗口")
	message := flag.String("message", "", "打开对话后发送的一条消息")
	out := flag.String("out", "uicheck.png", "截图输出路径")
	timeout := flag.Duration("timeout", time.Minute, "整体超时时间")
	flag.Parse()

	logger := logging.Must(config.LogConfig{Level: "info", Format: "console"})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := verify.Run(ctx, verify.Options{
		URL:        *url,
		ControlURL: *controlURL,
		Bin:        *bin,
		Headless:   !*headful,
		Message:    *message,
		Timeout:    *timeout,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("UI check failed", zap.Error(err))
		stop()
		os.Exit(1)
	}

	if err := os.WriteFile(*out, res.Screenshot, 0o644); err != nil {
		logger.Error("write screenshot", zap.Error(err))
		stop()
		os.Exit(1)
	}

	fmt.Printf("Chat opened with %s\n", res.Character)
	if res.Reply != "" {
		fmt.Printf("Reply: %s\n", res.Reply)
	}
	fmt.Printf("Screenshot saved to %s\n", *out)
}
