package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/John-Robertt/subhub/internal/config"
	"github.com/John-Robertt/subhub/internal/logger"
)

const usage = `用法: subhub [全局参数] <命令> [命令参数]

命令:
  ingest     解析上游文档并追加保存到来源
  refresh    用上游文档替换来源的全部记录
  compose    合成订阅配置（clash YAML 或 base64 链接列表）
  customset  保存自定义策略组 / 规则集

全局参数:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run returns the process exit code: 0 ok, 1 command failed, 2 bad usage.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("subhub", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "配置文件路径（YAML），为空则使用默认配置")
	driver := global.String("driver", "", "覆盖 storage.driver（sqlite|mysql）")
	dsn := global.String("dsn", "", "覆盖 storage.dsn")
	level := global.String("log-level", "", "覆盖 log.level（debug|info|warn|error）")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
	}
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if err := cfg.CheckValid(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	log := logger.New(cfg.Log)
	a, err := newApp(cfg, log, stdin, stdout)
	if err != nil {
		log.Err(err, "open storage failed", "driver", cfg.Storage.Driver)
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.close()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "ingest":
		err = a.ingest(ctx, cmdArgs, false)
	case "refresh":
		err = a.ingest(ctx, cmdArgs, true)
	case "compose":
		err = a.compose(ctx, cmdArgs)
	case "customset":
		err = a.customSet(ctx, cmdArgs)
	default:
		fmt.Fprintf(stderr, "未知命令：%s\n", cmd)
		global.Usage()
		return 2
	}

	var ue *usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &ue):
		fmt.Fprintln(stderr, ue.Error())
		return 2
	default:
		log.Err(err, "command failed", "command", cmd)
		fmt.Fprintln(stderr, err)
		return 1
	}
}
