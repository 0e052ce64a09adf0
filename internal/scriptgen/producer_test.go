package scriptgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iabetor/listenbuddy/internal/question"
	"github.com/iabetor/listenbuddy/internal/script"
)

const goodScript = `Speaker: Announcer (Gender: male)
Text: استمع إلى المحادثة التالية
---
Speaker: Student (Gender: female)
Text: عفواً، هل تتوقف هذه الحافلة هنا؟
---
Speaker: Announcer (Gender: male)
Text: السؤال: أين تتوقف الحافلة؟
---`

// scriptedGenerator 依次返回预设的回复，用完后重复最后一条。
type scriptedGenerator struct {
	replies []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i], nil
}

func testQuestion() *question.Question {
	return &question.Question{
		Introduction: "استمع إلى المحادثة التالية",
		Conversation: "الطالب: عفواً",
		Question:     "أين تتوقف الحافلة؟",
	}
}

func TestProduce_FirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{goodScript}}
	res, err := NewProducer(gen, script.DefaultRules(), 0).Produce(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if res.Attempts != 1 || len(gen.prompts) != 1 {
		t.Errorf("attempts = %d, calls = %d", res.Attempts, len(gen.prompts))
	}
	if len(res.Block) != 3 {
		t.Errorf("expected 3 turns, got %d", len(res.Block))
	}
}

func TestProduce_MalformedAlwaysExhaustsBudget(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Speaker: Announcer (Gender: robot)\nText: x"}}
	_, err := NewProducer(gen, script.DefaultRules(), 3).Produce(context.Background(), testQuestion())

	if len(gen.prompts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", len(gen.prompts))
	}
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Fatalf("expected ErrGenerationExhausted, got %v", err)
	}
	var pe *script.ParseFormatError
	if !errors.As(err, &pe) {
		t.Errorf("terminal error should carry the final parse error, got %v", err)
	}
	var ge *GenerationExhaustedError
	if !errors.As(err, &ge) || ge.Attempts != 3 {
		t.Errorf("expected GenerationExhaustedError with 3 attempts, got %v", err)
	}
}

func TestProduce_SucceedsOnSecondAttempt(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"garbage without turns", goodScript, goodScript}}
	res, err := NewProducer(gen, script.DefaultRules(), 3).Produce(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if len(gen.prompts) != 2 {
		t.Errorf("expected no third call, got %d calls", len(gen.prompts))
	}
	if gen.prompts[0] != gen.prompts[1] {
		t.Error("every attempt must send the identical prompt")
	}
}

func TestProduce_ValidationFailureRetries(t *testing.T) {
	latin := "Speaker: Announcer (Gender: male)\nText: listen\n---"
	gen := &scriptedGenerator{replies: []string{latin}}
	_, err := NewProducer(gen, script.DefaultRules(), 3).Produce(context.Background(), testQuestion())

	var ve *script.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected final ValidationError, got %v", err)
	}
	if len(gen.prompts) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(gen.prompts))
	}
}

func TestProduce_TransientServiceErrorRetried(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"", goodScript},
		errs:    []error{errors.New("dial tcp: connection refused")},
	}
	res, err := NewProducer(gen, script.DefaultRules(), 3).Produce(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
}

func TestProduce_FatalServiceErrorAbortsImmediately(t *testing.T) {
	authErr := errors.New("401 invalid api key")
	gen := &scriptedGenerator{
		replies: []string{goodScript},
		errs:    []error{authErr, authErr, authErr},
	}
	_, err := NewProducer(gen, script.DefaultRules(), 3).Produce(context.Background(), testQuestion())
	if !errors.Is(err, authErr) {
		t.Fatalf("expected the service error, got %v", err)
	}
	if errors.Is(err, ErrGenerationExhausted) {
		t.Errorf("a fatal error must not be reported as exhausted: %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Errorf("expected a single attempt, got %d", len(gen.prompts))
	}
}

func TestProduce_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{replies: []string{""}, errs: []error{context.Canceled}}
	_, err := NewProducer(gen, script.DefaultRules(), 3).Produce(ctx, testQuestion())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Errorf("expected a single attempt, got %d", len(gen.prompts))
	}
}

func TestGenerationExhaustedError_Message(t *testing.T) {
	err := &GenerationExhaustedError{Attempts: 3, Last: errors.New("boom")}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "3") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
