// Package pipeline 把一道听力题串成完整的生成流程：
// 脚本生成 → 静音准备 → 逐段合成 → 编排停顿 → 拼接输出。
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iabetor/listenbuddy/internal/audio"
	"github.com/iabetor/listenbuddy/internal/config"
	"github.com/iabetor/listenbuddy/internal/history"
	"github.com/iabetor/listenbuddy/internal/llm"
	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/iabetor/listenbuddy/internal/question"
	"github.com/iabetor/listenbuddy/internal/script"
	"github.com/iabetor/listenbuddy/internal/scriptgen"
	"github.com/iabetor/listenbuddy/internal/transcript"
	"github.com/iabetor/listenbuddy/internal/tts"
)

// Deps 是流水线依赖的外部服务。Translator 和 History 可为 nil。
type Deps struct {
	LLM        llm.Generator
	TTS        tts.Synthesizer
	Runner     audio.Runner
	Translator transcript.Translator
	History    *history.Store
}

// Result 描述一次成功的生成。
type Result struct {
	Path     string
	RunID    string
	Turns    int
	Attempts int
	Duration time.Duration
}

// Generator 是主编排器。多个 goroutine 可以同时调用 Generate，
// 每次调用使用独立的临时目录，只共享静音缓存。
type Generator struct {
	cfg *config.Config

	llm      llm.Generator
	producer *scriptgen.Producer
	tts      tts.Synthesizer
	voices   tts.VoiceSelector
	runner   audio.Runner
	silence  *audio.SilenceCache
	markers  audio.Markers

	transcript *transcript.Writer
	history    *history.Store

	workers int

	onStage func(from, to Stage)
	now     func() time.Time
}

// New 根据配置和依赖创建 Generator。
func New(cfg *config.Config, deps Deps) (*Generator, error) {
	if deps.LLM == nil || deps.TTS == nil || deps.Runner == nil {
		return nil, fmt.Errorf("[pipeline] LLM、TTS 和 ffmpeg 均不能为空")
	}
	if cfg == nil {
		return nil, fmt.Errorf("[pipeline] 配置不能为空")
	}
	if cfg.Audio.LongPauseMs <= 0 || cfg.Audio.ShortPauseMs <= 0 {
		return nil, fmt.Errorf("[pipeline] 停顿时长必须为正数: long=%dms, short=%dms",
			cfg.Audio.LongPauseMs, cfg.Audio.ShortPauseMs)
	}
	// errgroup 的并发上限为 0 时 Go 会永久阻塞
	workers := cfg.Audio.SynthWorkers
	if workers < 1 {
		workers = 1
	}

	rules := script.Rules{
		Announcer: cfg.Script.Announcer,
		InScript:  script.Arabic,
	}
	if r := cfg.Script.ScriptRange; len(r) == 2 {
		rules.InScript = script.RuneRange(rune(r[0]), rune(r[1]))
	}

	voices := tts.DefaultVoices(cfg.TTS.Engine)
	if cfg.TTS.Voices.Male != "" {
		voices.Male = cfg.TTS.Voices.Male
	}
	if cfg.TTS.Voices.Female != "" {
		voices.Female = cfg.TTS.Voices.Female
	}
	if voices.Male == "" || voices.Female == "" {
		return nil, fmt.Errorf("[pipeline] 引擎 %s 没有默认音色，请配置 tts.voices.male 和 tts.voices.female", cfg.TTS.Engine)
	}

	g := &Generator{
		cfg:      cfg,
		llm:      deps.LLM,
		producer: scriptgen.NewProducer(deps.LLM, rules, cfg.Script.MaxAttempts),
		tts:      deps.TTS,
		voices:   voices,
		runner:   deps.Runner,
		silence: audio.NewSilenceCache(cfg.Audio.OutputDir, deps.Runner,
			cfg.Audio.SilenceSampleRate, cfg.Audio.SilenceBitrate),
		markers: audio.Markers{
			Announcer: cfg.Script.Announcer,
			Intro:     cfg.Script.IntroMarker,
			Question:  cfg.Script.QuestionMarker,
			Options:   cfg.Script.OptionsMarker,
		},
		history: deps.History,
		workers: workers,
		now:     time.Now,
	}

	if cfg.Transcript.Enabled {
		g.transcript = transcript.NewWriter(deps.Translator, languageCode(cfg.TTS.Language), cfg.Transcript.Translate.Target)
	}

	logger.Infof("[pipeline] 已初始化: 引擎=%s, 男声=%s, 女声=%s, 输出目录=%s",
		cfg.TTS.Engine, voices.Male, voices.Female, cfg.Audio.OutputDir)
	return g, nil
}

// SetOnStage 注册阶段变化回调，用于展示进度。
func (g *Generator) SetOnStage(fn func(from, to Stage)) {
	g.onStage = fn
}

// GenerateAudio 为题目生成一个 MP3 文件并返回其路径。
func (g *Generator) GenerateAudio(ctx context.Context, q *question.Question) (string, error) {
	res, err := g.Generate(ctx, q)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// Generate 执行完整流程。任何失败都以 *StageError 返回，
// 此时输出文件和已合成的台词片段都已删除，静音缓存保留。
func (g *Generator) Generate(ctx context.Context, q *question.Question) (res *Result, err error) {
	start := g.now()
	runID := uuid.NewString()
	progress := NewProgress()
	progress.SetOnChange(g.onStage)

	run := history.Run{ID: runID, CreatedAt: start}
	if q != nil {
		run.Question = q.Question
	}

	var output string
	defer func() {
		if err == nil {
			return
		}
		if output != "" {
			if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warnf("[pipeline] 删除输出文件失败: %v", rmErr)
			}
		}
		stage := progress.Current()
		progress.Reset()
		logger.Errorf("[pipeline] 生成失败 (run=%s): %v", runID, err)

		run.Status = history.StatusFailed
		run.Stage = stage.String()
		run.Error = err.Error()
		g.record(ctx, run)
	}()

	progress.Advance(StageScript)
	if q == nil {
		return nil, &StageError{Stage: StageScript, Err: fmt.Errorf("题目为空")}
	}
	if err := q.Validate(); err != nil {
		return nil, &StageError{Stage: StageScript, Err: err}
	}

	if err := os.MkdirAll(g.cfg.Audio.OutputDir, 0755); err != nil {
		return nil, &StageError{Stage: StageScript, Err: fmt.Errorf("创建输出目录失败: %w", err)}
	}
	scratch, err := os.MkdirTemp(g.cfg.Audio.OutputDir, ".run-")
	if err != nil {
		return nil, &StageError{Stage: StageScript, Err: fmt.Errorf("创建临时目录失败: %w", err)}
	}
	defer os.RemoveAll(scratch)

	output = g.outputPath(start, runID)

	produced, err := g.producer.Produce(ctx, q)
	if err != nil {
		return nil, &StageError{Stage: StageScript, Err: err}
	}
	run.Attempts = produced.Attempts
	run.Turns = len(produced.Block)
	if named, ok := g.llm.(interface{ CurrentName() string }); ok {
		run.Model = named.CurrentName()
	}

	progress.Advance(StageSilence)
	long, err := g.silence.Get(ctx, g.cfg.Audio.LongPauseMs)
	if err != nil {
		return nil, &StageError{Stage: StageSilence, Err: err}
	}
	short, err := g.silence.Get(ctx, g.cfg.Audio.ShortPauseMs)
	if err != nil {
		return nil, &StageError{Stage: StageSilence, Err: err}
	}

	progress.Advance(StageSynthesis)
	synth := audio.NewSegmentSynthesizer(g.tts, scratch, g.cfg.TTS.Language)
	speech, err := g.synthesizeAll(ctx, synth, produced.Block)
	if err != nil {
		return nil, &StageError{Stage: StageSynthesis, Err: err}
	}

	progress.Advance(StageConcat)
	segments, err := audio.Assemble(produced.Block, speech, long, short, g.markers)
	if err != nil {
		audio.RemoveDisposable(speech)
		return nil, &StageError{Stage: StageConcat, Err: err}
	}
	if err := audio.NewConcatenator(g.runner, scratch).Concatenate(ctx, segments, output); err != nil {
		return nil, &StageError{Stage: StageConcat, Err: err}
	}
	progress.Advance(StageDone)

	res = &Result{
		Path:     output,
		RunID:    runID,
		Turns:    len(produced.Block),
		Attempts: produced.Attempts,
	}
	if d, probeErr := audio.Probe(output); probeErr == nil {
		res.Duration = d
	} else {
		logger.Warnf("[pipeline] 无法读取音频时长: %v", probeErr)
	}

	if g.transcript != nil {
		if _, trErr := g.transcript.Write(ctx, output, produced.Block); trErr != nil {
			logger.Warnf("[pipeline] 写入文字稿失败: %v", trErr)
		}
	}

	run.Output = output
	run.Duration = res.Duration
	run.Status = history.StatusOK
	g.record(ctx, run)

	logger.Infof("[pipeline] 已生成 %s (%d 段台词, %d 次尝试, 时长 %s, 耗时 %s)",
		output, res.Turns, res.Attempts, res.Duration.Round(time.Millisecond), g.now().Sub(start).Round(time.Millisecond))
	return res, nil
}

// synthesizeAll 按 audio.synth_workers 并发合成所有台词，结果按台词顺序排列。
// 任一段失败时停止派发剩余任务，并删除已生成的片段。
func (g *Generator) synthesizeAll(ctx context.Context, synth *audio.SegmentSynthesizer, block script.Block) ([]audio.Segment, error) {
	speech := make([]audio.Segment, len(block))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, t := range block {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			seg, err := synth.Synthesize(egCtx, i, t.Text, g.voices.VoiceFor(t.Gender))
			if err != nil {
				return err
			}
			speech[i] = seg
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		audio.RemoveDisposable(speech)
		return nil, err
	}
	return speech, nil
}

// outputPath 返回 question_<时间戳>.mp3，同一秒内重名时追加运行 ID 前缀。
func (g *Generator) outputPath(t time.Time, runID string) string {
	stamp := t.Format("20060102_150405")
	path := filepath.Join(g.cfg.Audio.OutputDir, "question_"+stamp+".mp3")
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(g.cfg.Audio.OutputDir, fmt.Sprintf("question_%s_%s.mp3", stamp, runID[:8]))
	}
	return path
}

// record 写入生成记录，失败只记录警告。
func (g *Generator) record(ctx context.Context, run history.Run) {
	if g.history == nil {
		return
	}
	if err := g.history.Record(context.WithoutCancel(ctx), run); err != nil {
		logger.Warnf("[pipeline] 写入生成记录失败: %v", err)
	}
}

// languageCode 把 "ar-SA" 这样的区域代码截成翻译服务使用的语言代码。
func languageCode(locale string) string {
	if i := strings.IndexByte(locale, '-'); i > 0 {
		return locale[:i]
	}
	return locale
}
