// Package tesseract implements text recognition by shelling out to the
// Tesseract OCR engine. The engine reads PNG frames on stdin; plain text and
// TSV word boxes come back on stdout. A missing binary makes the recognizer
// report unavailable instead of failing every call.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// Config locates and tunes the OCR engine.
type Config struct {
	Binary    string
	Languages string
	Timeout   time.Duration
}

const (
	defaultBinary    = "tesseract"
	defaultLanguages = "eng"
	defaultTimeout   = 20 * time.Second

	// psmSparse finds scattered UI labels across a whole frame; psmLine
	// reads one row strip as a single text line.
	psmSparse = "11"
	psmLine   = "7"

	// minWordConf drops TSV rows Tesseract itself considers noise.
	minWordConf = 30.0
)

// Recognizer shells out to the Tesseract binary.
type Recognizer struct {
	cfg    Config
	logger *zap.Logger

	probeOnce sync.Once
	path      string
	probeErr  error
}

// New builds a recognizer. The binary is probed lazily on first use.
func New(cfg Config, logger *zap.Logger) *Recognizer {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.Languages == "" {
		cfg.Languages = defaultLanguages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recognizer{cfg: cfg, logger: logger}
}

// Available reports whether the engine binary resolves on this host.
func (r *Recognizer) Available() bool {
	r.probeOnce.Do(func() {
		r.path, r.probeErr = exec.LookPath(r.cfg.Binary)
		if r.probeErr != nil {
			r.logger.Warn("ocr engine not found",
				zap.String("binary", r.cfg.Binary),
				zap.Error(r.probeErr))
		}
	})
	return r.probeErr == nil
}

// Recognize returns the text readable on the frame. An unreadable frame
// yields an empty string; only a broken engine yields an error.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image, mode pilot.RecognizeMode) (string, error) {
	psm := psmSparse
	if mode == pilot.RecognizeSingleLine {
		psm = psmLine
	}
	out, err := r.run(ctx, img, "--psm", psm)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// RecognizeWords returns each recognized word with its bounding box in frame
// coordinates.
func (r *Recognizer) RecognizeWords(ctx context.Context, img image.Image) ([]pilot.WordBox, error) {
	out, err := r.run(ctx, img, "--psm", psmSparse, "tsv")
	if err != nil {
		return nil, err
	}
	return parseWordTSV(out), nil
}

// run encodes the frame and executes one engine invocation.
func (r *Recognizer) run(ctx context.Context, img image.Image, extra ...string) ([]byte, error) {
	if img == nil {
		return nil, pilot.ErrCaptureUnavailable
	}
	if !r.Available() {
		return nil, pilot.ErrRecognitionUnavailable
	}

	var frame bytes.Buffer
	if err := png.Encode(&frame, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := append([]string{"stdin", "stdout", "-l", r.cfg.Languages}, extra...)
	cmd := exec.CommandContext(runCtx, r.path, args...)
	cmd.Stdin = &frame

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("ocr run timed out: %w", runCtx.Err())
		}
		return nil, fmt.Errorf("ocr run failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// parseWordTSV extracts word rows from Tesseract TSV output. Columns are
// level, page, block, paragraph, line, word, left, top, width, height,
// confidence, text; words carry level 5.
func parseWordTSV(data []byte) []pilot.WordBox {
	var words []pilot.WordBox
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		if fields[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < minWordConf {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}
		left, lerr := strconv.Atoi(fields[6])
		top, terr := strconv.Atoi(fields[7])
		width, werr := strconv.Atoi(fields[8])
		height, herr := strconv.Atoi(fields[9])
		if lerr != nil || terr != nil || werr != nil || herr != nil {
			continue
		}
		words = append(words, pilot.WordBox{
			Word: text,
			Box:  image.Rect(left, top, left+width, top+height),
		})
	}
	return words
}
