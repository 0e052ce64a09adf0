package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iabetor/listenbuddy/internal/audio"
	"github.com/iabetor/listenbuddy/internal/config"
	"github.com/iabetor/listenbuddy/internal/history"
	"github.com/iabetor/listenbuddy/internal/question"
	"github.com/iabetor/listenbuddy/internal/scriptgen"
	"github.com/iabetor/listenbuddy/internal/tts"
)

const busScript = `Speaker: Announcer (Gender: male)
Text: استمع إلى المحادثة التالية
---
Speaker: Student (Gender: female)
Text: عفواً، هل تتوقف هذه الحافلة هنا؟
---
Speaker: Teacher (Gender: male)
Text: نعم، كل عشر دقائق
---
Speaker: Announcer (Gender: male)
Text: السؤال: كم مرة تتوقف الحافلة؟
---`

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (f *fakeLLM) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, nil
}

// fakeTTS 返回以音色命名的假 MP3 数据。failAt >= 0 时第 failAt 次调用失败，
// delay 按调用顺序递减，用来打乱并发合成的完成顺序。
type fakeTTS struct {
	mu     sync.Mutex
	calls  int
	failAt int
	delay  time.Duration
}

func (f *fakeTTS) SynthesizeSpeech(ctx context.Context, req tts.Request) ([]byte, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay / time.Duration(n+1))
	}
	if n == f.failAt {
		return nil, errors.New("speech service unavailable")
	}
	return []byte("mp3:" + req.Voice), nil
}

// fakeFFmpeg 把最后一个参数当作输出文件写入；拼接时记录清单中的文件名。
type fakeFFmpeg struct {
	mu         sync.Mutex
	failConcat bool
	concats    int
	manifest   []string
}

func (f *fakeFFmpeg) Run(ctx context.Context, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := args[len(args)-1]
	for i, a := range args {
		if a == "concat" {
			f.concats++
		}
		if a == "-i" && strings.HasSuffix(args[i+1], ".txt") {
			data, err := os.ReadFile(args[i+1])
			if err != nil {
				return err
			}
			f.manifest = nil
			for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
				name := filepath.Base(strings.Trim(strings.TrimPrefix(line, "file "), "'"))
				f.manifest = append(f.manifest, name)
			}
			if f.failConcat {
				_ = os.WriteFile(out, []byte("partial"), 0644)
				return errors.New("exit status 1")
			}
		}
	}
	return os.WriteFile(out, []byte("ID3-fake"), 0644)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.OutputDir = t.TempDir()
	cfg.History.DBPath = "-"
	return cfg
}

func testQuestion() *question.Question {
	return &question.Question{
		Introduction: "استمع إلى المحادثة التالية",
		Conversation: "الطالب: عفواً، هل تتوقف هذه الحافلة هنا؟",
		Question:     "كم مرة تتوقف الحافلة؟",
	}
}

func newGenerator(t *testing.T, cfg *config.Config, deps Deps) *Generator {
	t.Helper()
	g, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

// listDir 返回目录中的所有文件名（不含子目录）。
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func assertManifestOrder(t *testing.T, got []string) {
	t.Helper()
	want := []string{
		"turn-000", "silence_2000ms",
		"turn-001", "silence_500ms",
		"turn-002", "silence_500ms",
		"silence_2000ms", "turn-003",
	}
	if len(got) != len(want) {
		t.Fatalf("manifest %v, want prefixes %v", got, want)
	}
	for i := range want {
		if !strings.HasPrefix(got[i], want[i]) {
			t.Fatalf("position %d: manifest %v, want prefixes %v", i, got, want)
		}
	}
}

func TestGenerate_Success(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transcript.Enabled = true
	ffmpeg := &fakeFFmpeg{}
	speech := &fakeTTS{failAt: -1}
	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: speech, Runner: ffmpeg})

	var stages []Stage
	g.SetOnStage(func(from, to Stage) { stages = append(stages, to) })

	res, err := g.Generate(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if res.Turns != 4 || res.Attempts != 1 || res.RunID == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if filepath.Dir(res.Path) != cfg.Audio.OutputDir || !strings.HasPrefix(filepath.Base(res.Path), "question_") {
		t.Errorf("unexpected output path %s", res.Path)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("output missing: %v", err)
	}
	assertManifestOrder(t, ffmpeg.manifest)

	base := strings.TrimSuffix(filepath.Base(res.Path), ".mp3")
	want := map[string]bool{
		base + ".mp3":        true,
		base + ".txt":        true,
		"silence_2000ms.mp3": true,
		"silence_500ms.mp3":  true,
	}
	left := listDir(t, cfg.Audio.OutputDir)
	if len(left) != len(want) {
		t.Errorf("unexpected files in output dir: %v", left)
	}
	for _, name := range left {
		if !want[name] {
			t.Errorf("unexpected leftover %s", name)
		}
	}

	wantStages := []Stage{StageScript, StageSilence, StageSynthesis, StageConcat, StageDone}
	if len(stages) != len(wantStages) {
		t.Fatalf("stages %v, want %v", stages, wantStages)
	}
	for i := range wantStages {
		if stages[i] != wantStages[i] {
			t.Errorf("stage %d: got %s, want %s", i, stages[i], wantStages[i])
		}
	}
}

func TestGenerate_VoicesFollowGender(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTS.Voices.Female = "custom-female"
	ffmpeg := &fakeFFmpeg{}
	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: &fakeTTS{failAt: -1}, Runner: ffmpeg})

	path, err := g.GenerateAudio(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("GenerateAudio failed: %v", err)
	}
	if path == "" {
		t.Fatal("empty output path")
	}
	if g.voices.Male != tts.EdgeMaleVoice || g.voices.Female != "custom-female" {
		t.Errorf("unexpected voices %+v", g.voices)
	}
}

func TestGenerate_ParallelSynthesisKeepsOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.SynthWorkers = 4
	ffmpeg := &fakeFFmpeg{}
	speech := &fakeTTS{failAt: -1, delay: 40 * time.Millisecond}
	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: speech, Runner: ffmpeg})

	if _, err := g.Generate(context.Background(), testQuestion()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	assertManifestOrder(t, ffmpeg.manifest)
	if speech.calls != 4 {
		t.Errorf("expected 4 synthesis calls, got %d", speech.calls)
	}
}

func TestGenerate_ExhaustedScript(t *testing.T) {
	cfg := testConfig(t)
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	llm := &fakeLLM{reply: "this is not a script"}
	ffmpeg := &fakeFFmpeg{}
	g := newGenerator(t, cfg, Deps{LLM: llm, TTS: &fakeTTS{failAt: -1}, Runner: ffmpeg, History: store})

	path, err := g.GenerateAudio(context.Background(), testQuestion())
	if path != "" {
		t.Errorf("expected no path, got %s", path)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageScript {
		t.Fatalf("expected script StageError, got %v", err)
	}
	if !errors.Is(err, scriptgen.ErrGenerationExhausted) {
		t.Errorf("expected ErrGenerationExhausted in chain: %v", err)
	}
	if llm.calls != 3 {
		t.Errorf("expected 3 generation attempts, got %d", llm.calls)
	}
	if left := listDir(t, cfg.Audio.OutputDir); len(left) != 0 {
		t.Errorf("nothing should be written on script failure, found %v", left)
	}

	runs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != history.StatusFailed || runs[0].Stage != "script" {
		t.Errorf("unexpected history %+v", runs)
	}
}

func TestGenerate_SynthesisFailureCleansUp(t *testing.T) {
	cfg := testConfig(t)
	ffmpeg := &fakeFFmpeg{}
	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: &fakeTTS{failAt: 2}, Runner: ffmpeg})

	_, err := g.Generate(context.Background(), testQuestion())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageSynthesis {
		t.Fatalf("expected synthesis StageError, got %v", err)
	}
	var synthErr *audio.SynthesisError
	if !errors.As(err, &synthErr) || synthErr.Index != 2 {
		t.Errorf("expected SynthesisError for turn 2, got %v", err)
	}
	if ffmpeg.concats != 0 {
		t.Error("concatenation must not run after a synthesis failure")
	}

	left := listDir(t, cfg.Audio.OutputDir)
	if len(left) != 2 {
		t.Fatalf("only silence files should remain, found %v", left)
	}
	for _, name := range left {
		if !strings.HasPrefix(name, "silence_") {
			t.Errorf("unexpected leftover %s", name)
		}
	}
}

func TestGenerate_ConcatFailureCleansUp(t *testing.T) {
	cfg := testConfig(t)
	ffmpeg := &fakeFFmpeg{failConcat: true}
	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: &fakeTTS{failAt: -1}, Runner: ffmpeg})

	_, err := g.Generate(context.Background(), testQuestion())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageConcat {
		t.Fatalf("expected concat StageError, got %v", err)
	}
	var ce *audio.ConcatenationError
	if !errors.As(err, &ce) {
		t.Errorf("expected ConcatenationError in chain: %v", err)
	}

	left := listDir(t, cfg.Audio.OutputDir)
	if len(left) != 2 {
		t.Fatalf("only the two silence files should remain, found %v", left)
	}
	for _, name := range left {
		if !strings.HasPrefix(name, "silence_") {
			t.Errorf("unexpected leftover %s", name)
		}
	}
}

func TestGenerate_RecordsSuccess(t *testing.T) {
	cfg := testConfig(t)
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: &fakeTTS{failAt: -1}, Runner: &fakeFFmpeg{}, History: store})
	res, err := g.Generate(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	runs, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.ID != res.RunID || r.Output != res.Path || r.Status != history.StatusOK || r.Turns != 4 {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestGenerate_InvalidQuestion(t *testing.T) {
	cfg := testConfig(t)
	llm := &fakeLLM{reply: busScript}
	g := newGenerator(t, cfg, Deps{LLM: llm, TTS: &fakeTTS{failAt: -1}, Runner: &fakeFFmpeg{}})

	_, err := g.Generate(context.Background(), &question.Question{Conversation: "..."})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageScript {
		t.Fatalf("expected script StageError, got %v", err)
	}
	if llm.calls != 0 {
		t.Error("generation service should not be called for an invalid question")
	}
}

func TestGenerate_OutputNameCollision(t *testing.T) {
	cfg := testConfig(t)
	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: &fakeTTS{failAt: -1}, Runner: &fakeFFmpeg{}})
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	g.now = func() time.Time { return fixed }

	first, err := g.GenerateAudio(context.Background(), testQuestion())
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.GenerateAudio(context.Background(), testQuestion())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(first) != "question_20240501_120000.mp3" {
		t.Errorf("unexpected first name %s", first)
	}
	if first == second {
		t.Error("second run must not overwrite the first")
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(testConfig(t), Deps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestGenerate_ZeroWorkersFallsBackToSerial(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.SynthWorkers = 0
	speech := &fakeTTS{failAt: -1}
	g := newGenerator(t, cfg, Deps{LLM: &fakeLLM{reply: busScript}, TTS: speech, Runner: &fakeFFmpeg{}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, testQuestion())
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Generate blocked with synth_workers=0")
	}
	if speech.calls != 4 {
		t.Errorf("expected 4 synthesis calls, got %d", speech.calls)
	}
}

func TestNew_RejectsNonPositivePauses(t *testing.T) {
	deps := Deps{LLM: &fakeLLM{reply: busScript}, TTS: &fakeTTS{failAt: -1}, Runner: &fakeFFmpeg{}}
	tests := []struct {
		name        string
		long, short int
	}{
		{"zero long", 0, 500},
		{"negative short", 2000, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Audio.LongPauseMs = tt.long
			cfg.Audio.ShortPauseMs = tt.short
			if _, err := New(cfg, deps); err == nil {
				t.Fatal("expected error for non-positive pause")
			}
		})
	}
}

func TestNew_TencentRequiresConfiguredVoices(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTS.Engine = "tencent"
	deps := Deps{LLM: &fakeLLM{reply: busScript}, TTS: &fakeTTS{failAt: -1}, Runner: &fakeFFmpeg{}}
	if _, err := New(cfg, deps); err == nil {
		t.Fatal("expected error when tencent voices are not configured")
	}

	cfg.TTS.Voices.Male, cfg.TTS.Voices.Female = "1001", "1002"
	g := newGenerator(t, cfg, deps)
	if g.voices.Male != "1001" || g.voices.Female != "1002" {
		t.Errorf("unexpected voices %+v", g.voices)
	}
}

func TestLanguageCode(t *testing.T) {
	if languageCode("ar-SA") != "ar" || languageCode("ar") != "ar" {
		t.Error("unexpected language code")
	}
}
