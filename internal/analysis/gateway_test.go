package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeGenerator struct {
	raw    string
	err    error
	deltas []string
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, image []byte, mimeType, prompt string, onDelta func(string)) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if onDelta != nil {
		for _, d := range f.deltas {
			onDelta(d)
		}
	}
	if f.raw != "" {
		return f.raw, nil
	}
	return strings.Join(f.deltas, ""), nil
}

func TestAnalyze_NotConfigured(t *testing.T) {
	gw := NewGateway(nil)
	_, err := gw.Analyze(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAnalyze_ServiceErrorWrapsDetail(t *testing.T) {
	gw := NewGateway(&fakeGenerator{err: errors.New("dial tcp: timeout")})
	_, err := gw.Analyze(context.Background(), Request{Prompt: "p"})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if !strings.Contains(se.Detail, "timeout") {
		t.Fatalf("detail lost: %q", se.Detail)
	}
}

func TestAnalyze_StructuredSuccess(t *testing.T) {
	raw := "```json\n{\"objectName\":\"Mug\",\"description\":\"A mug\",\"translatedDescription\":\"A mug\"}\n```"
	gw := NewGateway(&fakeGenerator{raw: raw})
	out, err := gw.Analyze(context.Background(), Request{Prompt: "p", Structured: true})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Structured == nil || out.Structured.ObjectName != "Mug" {
		t.Fatalf("expected structured Mug result, got %+v", out)
	}
}

func TestAnalyze_DegradesToPlainTextOnBadJSON(t *testing.T) {
	gw := NewGateway(&fakeGenerator{raw: "not json"})
	out, err := gw.Analyze(context.Background(), Request{
		Prompt:        "p",
		Structured:    true,
		PartialPrefix: "I see the following: ",
	})
	if err != nil {
		t.Fatalf("degradation must not fail the call: %v", err)
	}
	if out.Structured != nil {
		t.Fatalf("expected no structured result")
	}
	if out.Text != "I see the following: not json" {
		t.Fatalf("unexpected degraded text: %q", out.Text)
	}
}

func TestAnalyze_DegradesOnMissingRequiredFields(t *testing.T) {
	gw := NewGateway(&fakeGenerator{raw: `{"objectName":"Mug"}`})
	out, err := gw.Analyze(context.Background(), Request{Prompt: "p", Structured: true, PartialPrefix: "partial: "})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Structured != nil {
		t.Fatalf("result missing required fields must degrade")
	}
	if !strings.HasPrefix(out.Text, "partial: ") {
		t.Fatalf("missing partial prefix: %q", out.Text)
	}
}

func TestAnalyze_PlainStreamsDeltasInOrder(t *testing.T) {
	gen := &fakeGenerator{deltas: []string{"It ", "is ", "a mug."}}
	gw := NewGateway(gen)
	var got []string
	out, err := gw.Analyze(context.Background(), Request{
		Prompt:  "p",
		OnDelta: func(d string) { got = append(got, d) },
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if strings.Join(got, "") != "It is a mug." {
		t.Fatalf("deltas out of order or dropped: %v", got)
	}
	if out.Text != "It is a mug." {
		t.Fatalf("folded text mismatch: %q", out.Text)
	}
}

func TestAnalyze_StructuredDoesNotStream(t *testing.T) {
	gen := &fakeGenerator{raw: `{"objectName":"Mug","description":"d","translatedDescription":"t"}`}
	gw := NewGateway(gen)
	called := false
	_, err := gw.Analyze(context.Background(), Request{
		Prompt:     "p",
		Structured: true,
		OnDelta:    func(string) { called = true },
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if called {
		t.Fatalf("structured request must not stream raw JSON deltas")
	}
}
