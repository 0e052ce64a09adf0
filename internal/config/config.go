package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 ListenBuddy 的顶层配置结构。
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Script     ScriptConfig     `yaml:"script"`
	TTS        TTSConfig        `yaml:"tts"`
	Audio      AudioConfig      `yaml:"audio"`
	Transcript TranscriptConfig `yaml:"transcript"`
	History    HistoryConfig    `yaml:"history"`
	Log        LogConfig        `yaml:"log"`
}

// LLMConfig 脚本生成服务配置。models 按顺序尝试，失败时切换到下一个。
type LLMConfig struct {
	Models      []ModelConfig `yaml:"models"`
	Temperature float32       `yaml:"temperature"`
	TopP        float32       `yaml:"top_p"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// ModelConfig 单个 OpenAI 兼容模型。
type ModelConfig struct {
	Name   string `yaml:"name"`
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ScriptConfig 脚本解析与校验配置。
type ScriptConfig struct {
	Announcer   string `yaml:"announcer"`
	MaxAttempts int    `yaml:"max_attempts"`
	// ScriptRange 目标文字的码点区间 [lo, hi]，默认阿拉伯文 0x0600-0x06FF。
	ScriptRange    []int  `yaml:"script_range"`
	IntroMarker    string `yaml:"intro_marker"`
	QuestionMarker string `yaml:"question_marker"`
	OptionsMarker  string `yaml:"options_marker"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	Engine   string        `yaml:"engine"`
	Language string        `yaml:"language"`
	Voices   VoicesConfig  `yaml:"voices"`
	Tencent  TencentConfig `yaml:"tencent"`
}

// VoicesConfig 按性别指定的发音人，留空使用引擎默认值。
type VoicesConfig struct {
	Male   string `yaml:"male"`
	Female string `yaml:"female"`
}

// TencentConfig 腾讯云凭证。
type TencentConfig struct {
	SecretID   string `yaml:"secret_id"`
	SecretKey  string `yaml:"secret_key"`
	Region     string `yaml:"region"`
	SampleRate uint64 `yaml:"sample_rate"`
}

// AudioConfig 音频处理配置。
type AudioConfig struct {
	OutputDir         string `yaml:"output_dir"`
	FFmpeg            string `yaml:"ffmpeg"`
	LongPauseMs       int    `yaml:"long_pause_ms"`
	ShortPauseMs      int    `yaml:"short_pause_ms"`
	SilenceSampleRate int    `yaml:"silence_sample_rate"`
	SilenceBitrate    string `yaml:"silence_bitrate"`
	SynthWorkers      int    `yaml:"synth_workers"`
}

// TranscriptConfig 文字稿配置。
type TranscriptConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Translate TranslateConfig `yaml:"translate"`
}

// TranslateConfig 腾讯云机器翻译配置，secret_id 为空时不翻译。
type TranslateConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Target    string `yaml:"target"`
}

// HistoryConfig 生成记录配置。
type HistoryConfig struct {
	// DBPath 为空时使用 <output_dir>/history.db，为 "-" 时不记录。
	DBPath string `yaml:"db_path"`
}

// Disabled 报告是否关闭了生成记录。
func (h HistoryConfig) Disabled() bool { return h.DBPath == "-" }

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${LISTENBUDDY_LLM_API_KEY}
	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("配置文件 %s 无效: %w", path, err)
	}
	return cfg, nil
}

// Default 返回全部使用默认值的配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 0.95
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 2000
	}
	for i := range cfg.LLM.Models {
		m := &cfg.LLM.Models[i]
		// 去除 API Key 两端可能的空白（环境变量展开后常见）
		m.APIKey = strings.TrimSpace(m.APIKey)
		if m.Name == "" {
			m.Name = m.Model
		}
	}

	if cfg.Script.Announcer == "" {
		cfg.Script.Announcer = "Announcer"
	}
	if cfg.Script.MaxAttempts == 0 {
		cfg.Script.MaxAttempts = 3
	}
	if len(cfg.Script.ScriptRange) == 0 {
		cfg.Script.ScriptRange = []int{0x0600, 0x06FF}
	}
	if cfg.Script.IntroMarker == "" {
		cfg.Script.IntroMarker = "استمع"
	}
	if cfg.Script.QuestionMarker == "" {
		cfg.Script.QuestionMarker = "السؤال"
	}
	if cfg.Script.OptionsMarker == "" {
		cfg.Script.OptionsMarker = "الخيارات"
	}

	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "edge"
	}
	if cfg.TTS.Language == "" {
		cfg.TTS.Language = "ar-SA"
	}
	if cfg.TTS.Tencent.Region == "" {
		cfg.TTS.Tencent.Region = "ap-guangzhou"
	}
	if cfg.TTS.Tencent.SampleRate == 0 {
		cfg.TTS.Tencent.SampleRate = 24000
	}

	if cfg.Audio.OutputDir == "" {
		cfg.Audio.OutputDir = "./audio"
	} else {
		cfg.Audio.OutputDir = expandHome(cfg.Audio.OutputDir)
	}
	if cfg.Audio.FFmpeg == "" {
		cfg.Audio.FFmpeg = "ffmpeg"
	}
	if cfg.Audio.LongPauseMs == 0 {
		cfg.Audio.LongPauseMs = 2000
	}
	if cfg.Audio.ShortPauseMs == 0 {
		cfg.Audio.ShortPauseMs = 500
	}
	if cfg.Audio.SilenceSampleRate == 0 {
		cfg.Audio.SilenceSampleRate = 24000
	}
	if cfg.Audio.SilenceBitrate == "" {
		cfg.Audio.SilenceBitrate = "48k"
	}
	if cfg.Audio.SynthWorkers <= 0 {
		cfg.Audio.SynthWorkers = 1
	}

	if cfg.Transcript.Translate.Region == "" {
		cfg.Transcript.Translate.Region = cfg.TTS.Tencent.Region
	}
	if cfg.Transcript.Translate.Target == "" {
		cfg.Transcript.Translate.Target = "zh"
	}

	if cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(cfg.Audio.OutputDir, "history.db")
	} else if !cfg.History.Disabled() {
		cfg.History.DBPath = expandHome(cfg.History.DBPath)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		cfg.Log.File = expandHome(cfg.Log.File)
	}
}

// validate 检查无法用默认值修正的配置。
func (c *Config) validate() error {
	if len(c.Script.ScriptRange) != 2 || c.Script.ScriptRange[0] > c.Script.ScriptRange[1] {
		return fmt.Errorf("script.script_range 必须是 [lo, hi]: %v", c.Script.ScriptRange)
	}
	switch c.TTS.Engine {
	case "edge":
	case "tencent":
		// 腾讯云按音色决定语种，没有可用的默认阿拉伯语音色
		if c.TTS.Voices.Male == "" || c.TTS.Voices.Female == "" {
			return fmt.Errorf("tts.engine 为 tencent 时必须配置 tts.voices.male 和 tts.voices.female")
		}
	default:
		return fmt.Errorf("不支持的 tts.engine: %q", c.TTS.Engine)
	}
	if c.Audio.LongPauseMs <= 0 || c.Audio.ShortPauseMs <= 0 {
		return fmt.Errorf("audio.long_pause_ms 和 audio.short_pause_ms 必须为正数")
	}
	if c.Script.MaxAttempts < 1 {
		return fmt.Errorf("script.max_attempts 必须 >= 1: %d", c.Script.MaxAttempts)
	}
	return nil
}

// expandHome 把 ~/ 替换为用户主目录，Go 不会自动展开 ~。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return home + path[1:]
}
