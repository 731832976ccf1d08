package tesseract

import (
	"context"
	"image"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	r := New(Config{}, zap.NewNop())
	if r.cfg.Binary != defaultBinary || r.cfg.Languages != defaultLanguages {
		t.Fatalf("unexpected defaults: %+v", r.cfg)
	}
	if r.cfg.Timeout != 20*time.Second {
		t.Fatalf("unexpected default timeout: %v", r.cfg.Timeout)
	}
}

func TestUnavailableEngineErrors(t *testing.T) {
	t.Parallel()

	r := New(Config{Binary: "definitely-not-a-real-ocr-binary"}, zap.NewNop())
	if r.Available() {
		t.Fatal("expected missing binary to be unavailable")
	}
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	if _, err := r.Recognize(context.Background(), img, pilot.RecognizeFull); err == nil {
		t.Fatal("expected error from unavailable engine")
	}
	if _, err := r.RecognizeWords(context.Background(), img); err == nil {
		t.Fatal("expected error from unavailable engine")
	}
}

func TestRunRejectsNilFrame(t *testing.T) {
	t.Parallel()

	r := New(Config{}, zap.NewNop())
	if _, err := r.run(context.Background(), nil); err != pilot.ErrCaptureUnavailable {
		t.Fatalf("expected capture unavailable, got %v", err)
	}
}

func TestParseWordTSV(t *testing.T) {
	t.Parallel()

	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
		"4\t1\t1\t1\t1\t0\t10\t20\t200\t18\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t10\t20\t60\t18\t91.5\tLucky\n" +
		"5\t1\t1\t1\t1\t2\t80\t20\t70\t18\t88.2\tDragon\n" +
		"5\t1\t1\t1\t1\t3\t160\t20\t40\t18\t12.0\t#!\n" +
		"5\t1\t1\t1\t1\t4\t210\t20\t40\t18\t77.0\t \n" +
		"5\t1\t1\t1\t2\t1\tbad\t40\t50\t18\t95.0\tJoin\n"

	words := parseWordTSV([]byte(tsv))
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d: %+v", len(words), words)
	}
	if words[0].Word != "Lucky" || words[1].Word != "Dragon" {
		t.Fatalf("unexpected words: %+v", words)
	}
	if words[0].Box != image.Rect(10, 20, 70, 38) {
		t.Fatalf("unexpected box: %v", words[0].Box)
	}
}

func TestParseWordTSVEmpty(t *testing.T) {
	t.Parallel()

	if words := parseWordTSV(nil); words != nil {
		t.Fatalf("expected nil for empty input, got %+v", words)
	}
}
