package ocr

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"
)

func testPage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 600, 600))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestEnsemble_NoEngines(t *testing.T) {
	e := NewEnsemble(EnsembleConfig{})

	_, err := e.Extract(context.Background(), testPage(), 1, ExtractOptions{})
	if err == nil {
		t.Fatal("Extract() with no engines should fail")
	}
	if !errors.Is(err, ErrNoEngines) {
		t.Errorf("error = %v, want ErrNoEngines", err)
	}
}

func TestEnsemble_BestSelection(t *testing.T) {
	tests := []struct {
		name    string
		engines []Engine
		want    string // winning engine id
	}{
		{
			"higher confidence wins",
			[]Engine{
				NewMockEngine("a", "short", 90),
				NewMockEngine("b", "much longer text here", 70),
			},
			"a",
		},
		{
			"text length breaks confidence tie",
			[]Engine{
				NewMockEngine("a", "short", 85),
				NewMockEngine("b", "much longer text here", 85),
			},
			"b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnsemble(EnsembleConfig{Engines: tt.engines})
			res, err := e.Extract(context.Background(), testPage(), 1, ExtractOptions{})
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if res.EngineID != tt.want {
				t.Errorf("winner = %s, want %s", res.EngineID, tt.want)
			}
		})
	}
}

func TestEnsemble_OneEngineFails(t *testing.T) {
	good := NewMockEngine("good", "recovered text", 80)
	bad := &MockEngine{ID: "bad", Err: errors.New("engine exploded")}

	e := NewEnsemble(EnsembleConfig{Engines: []Engine{bad, good}})
	res, err := e.Extract(context.Background(), testPage(), 1, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v, want success from surviving engine", err)
	}
	if res.EngineID != "good" {
		t.Errorf("EngineID = %s, want good", res.EngineID)
	}
}

func TestEnsemble_AllEnginesFail(t *testing.T) {
	e := NewEnsemble(EnsembleConfig{Engines: []Engine{
		&MockEngine{ID: "a", Err: errors.New("fail a")},
		&MockEngine{ID: "b", Err: errors.New("fail b")},
	}})

	_, err := e.Extract(context.Background(), testPage(), 1, ExtractOptions{})
	if err == nil {
		t.Fatal("Extract() should fail when every engine fails")
	}
}

func TestEnsemble_EngineSubset(t *testing.T) {
	a := NewMockEngine("a", "from a", 50)
	b := NewMockEngine("b", "from b", 99)

	e := NewEnsemble(EnsembleConfig{Engines: []Engine{a, b}})
	res, err := e.Extract(context.Background(), testPage(), 1, ExtractOptions{Engines: []string{"a"}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.EngineID != "a" {
		t.Errorf("EngineID = %s, want a", res.EngineID)
	}
	if b.Calls() != 0 {
		t.Errorf("engine b called %d times, want 0", b.Calls())
	}
}

func TestEnsemble_RunsConcurrently(t *testing.T) {
	const latency = 150 * time.Millisecond
	engines := []Engine{
		&MockEngine{ID: "a", FixedResult: Result{Text: "x", Confidence: 50}, Latency: latency},
		&MockEngine{ID: "b", FixedResult: Result{Text: "y", Confidence: 60}, Latency: latency},
		&MockEngine{ID: "c", FixedResult: Result{Text: "z", Confidence: 70}, Latency: latency},
	}

	e := NewEnsemble(EnsembleConfig{Engines: engines})
	start := time.Now()
	results, err := e.ExtractAll(context.Background(), testPage(), 1, ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAll() error = %v", err)
	}
	elapsed := time.Since(start)

	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
	// Serial execution would take >= 3x latency.
	if elapsed > 2*latency {
		t.Errorf("ExtractAll took %v, engines do not appear to run concurrently", elapsed)
	}
}

func TestEnsemble_StatsRecorded(t *testing.T) {
	stats := NewStats()
	e := NewEnsemble(EnsembleConfig{
		Engines: []Engine{NewMockEngine("a", "t", 50), NewMockEngine("b", "t", 60)},
		Stats:   stats,
	})

	if _, err := e.Extract(context.Background(), testPage(), 1, ExtractOptions{}); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := stats.TotalRequests(); got != 2 {
		t.Errorf("TotalRequests() = %d, want 2", got)
	}
	per := stats.EngineRequests()
	if per["a"] != 1 || per["b"] != 1 {
		t.Errorf("EngineRequests() = %v, want one each", per)
	}
}

func TestEnsemble_PreprocessingEchoed(t *testing.T) {
	e := NewEnsemble(EnsembleConfig{Engines: []Engine{NewMockEngine("a", "t", 50)}})

	res, err := e.Extract(context.Background(), testPage(), 1, ExtractOptions{Preprocess: true})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Preprocessing) == 0 {
		t.Error("preprocessing steps should be echoed into the result")
	}
}

func TestFilterWords(t *testing.T) {
	words := []Word{
		{Text: "good", Confidence: 90},
		{Text: "noise", Confidence: 5},
		{Text: "ok", Confidence: 60},
	}

	kept, avg := FilterWords(words, MinWordConfidence)
	if len(kept) != 2 {
		t.Fatalf("kept %d words, want 2", len(kept))
	}
	if avg != 75 {
		t.Errorf("average = %g, want 75", avg)
	}

	kept, avg = FilterWords([]Word{{Text: "x", Confidence: 1}}, MinWordConfidence)
	if kept != nil || avg != 0 {
		t.Errorf("all-filtered case = (%v, %g), want (nil, 0)", kept, avg)
	}
}
