package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/iabetor/listenbuddy/internal/audio"
	"github.com/iabetor/listenbuddy/internal/config"
	"github.com/iabetor/listenbuddy/internal/history"
	"github.com/iabetor/listenbuddy/internal/llm"
	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/iabetor/listenbuddy/internal/pipeline"
	"github.com/iabetor/listenbuddy/internal/question"
	"github.com/iabetor/listenbuddy/internal/transcript"
	"github.com/iabetor/listenbuddy/internal/tts"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/listenbuddy.yaml", "配置文件路径")
	play := flag.Bool("play", false, "生成后在默认扬声器上试听")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，取消进行中的生成
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在取消...", sig)
		cancel()
	}()

	switch args[0] {
	case "generate":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: listenbuddy generate <题目.json>")
			return 1
		}
		return cmdGenerate(ctx, cfg, args[1], *play)
	case "history":
		limit := 20
		if len(args) >= 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "无效的条数: %s\n", args[1])
				return 1
			}
			limit = n
		}
		return cmdHistory(ctx, cfg, limit)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `ListenBuddy 听力题音频生成工具

用法:
  listenbuddy [-config path] [-play] generate <题目.json>   生成听力音频
  listenbuddy [-config path] history [条数]                  查看生成记录

选项:`)
	flag.PrintDefaults()
}

func cmdGenerate(ctx context.Context, cfg *config.Config, questionPath string, play bool) int {
	q, err := question.Load(questionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取题目失败: %v\n", err)
		return 1
	}

	deps, closeDeps, err := buildDeps(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		return 1
	}
	defer closeDeps()

	gen, err := pipeline.New(cfg, deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建流水线失败: %v\n", err)
		return 1
	}
	gen.SetOnStage(func(from, to pipeline.Stage) {
		if to != pipeline.StageIdle {
			logger.Infof("[main] 阶段: %s", to)
		}
	})

	res, err := gen.Generate(ctx, q)
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "生成失败（%s 阶段）: %v\n", se.Stage, se.Err)
		} else {
			fmt.Fprintf(os.Stderr, "生成失败: %v\n", err)
		}
		return 1
	}
	fmt.Println(res.Path)

	if play {
		player, err := audio.NewPlayer()
		if err != nil {
			fmt.Fprintf(os.Stderr, "初始化播放失败: %v\n", err)
			return 1
		}
		defer player.Close()
		if err := player.PlayFile(ctx, res.Path); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "播放失败: %v\n", err)
			return 1
		}
	}
	return 0
}

// buildDeps 按配置创建外部服务客户端。返回的 close 函数释放数据库等资源。
func buildDeps(cfg *config.Config) (pipeline.Deps, func(), error) {
	var deps pipeline.Deps
	closeFn := func() {}

	models := make([]llm.ModelConfig, 0, len(cfg.LLM.Models))
	for _, m := range cfg.LLM.Models {
		models = append(models, llm.ModelConfig{Name: m.Name, APIURL: m.APIURL, APIKey: m.APIKey, Model: m.Model})
	}
	provider, err := llm.NewMultiProvider(models, llm.GenerateOptions{
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return deps, closeFn, err
	}
	deps.LLM = provider

	switch cfg.TTS.Engine {
	case "tencent":
		engine, err := tts.NewTencentEngine(tts.TencentConfig{
			SecretID:   cfg.TTS.Tencent.SecretID,
			SecretKey:  cfg.TTS.Tencent.SecretKey,
			Region:     cfg.TTS.Tencent.Region,
			SampleRate: cfg.TTS.Tencent.SampleRate,
		})
		if err != nil {
			return deps, closeFn, err
		}
		deps.TTS = engine
	default:
		deps.TTS = tts.NewEdgeEngine()
	}

	deps.Runner = audio.NewFFmpeg(cfg.Audio.FFmpeg)

	if cfg.Transcript.Enabled && cfg.Transcript.Translate.SecretID != "" {
		tr := cfg.Transcript.Translate
		translator, err := transcript.NewTencentTranslator(tr.SecretID, tr.SecretKey, tr.Region)
		if err != nil {
			logger.Warnf("[main] 机器翻译不可用，文字稿只含原文: %v", err)
		} else {
			deps.Translator = translator
		}
	}

	if !cfg.History.Disabled() {
		store, err := history.Open(cfg.History.DBPath)
		if err != nil {
			logger.Warnf("[main] 生成记录不可用: %v", err)
		} else {
			deps.History = store
			closeFn = func() { store.Close() }
		}
	}

	return deps, closeFn, nil
}

func cmdHistory(ctx context.Context, cfg *config.Config, limit int) int {
	if cfg.History.Disabled() {
		fmt.Fprintln(os.Stderr, "生成记录未启用，请在配置文件中设置 history.db_path")
		return 1
	}
	store, err := history.Open(cfg.History.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开生成记录失败: %v\n", err)
		return 1
	}
	defer store.Close()

	runs, err := store.List(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询生成记录失败: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("暂无生成记录")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "时间\t状态\t台词\t尝试\t时长\t输出/错误")
	for _, r := range runs {
		detail := r.Output
		if r.Status == history.StatusFailed {
			detail = fmt.Sprintf("[%s] %s", r.Stage, r.Error)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status, r.Turns, r.Attempts, r.Duration.Round(time.Second), detail)
	}
	w.Flush()
	return 0
}
