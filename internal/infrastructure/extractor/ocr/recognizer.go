package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

const (
	DefaultLanguage = "eng"
	DefaultDPI      = 200
)

var ErrToolNotFound = errors.New("ocr requires pdftoppm (poppler) and tesseract in PATH")

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

type Options struct {
	Language string
	DPI      int
	WorkDir  string
}

// Recognizer renders every PDF page to an image with pdftoppm and runs
// tesseract over each page.
type Recognizer struct {
	runner   CommandRunner
	language string
	dpi      int
	workDir  string
}

func New(options Options) *Recognizer {
	return NewWithRunner(execRunner{}, options)
}

func NewWithRunner(runner CommandRunner, options Options) *Recognizer {
	language := strings.TrimSpace(options.Language)
	if language == "" {
		language = DefaultLanguage
	}
	dpi := options.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Recognizer{
		runner:   runner,
		language: language,
		dpi:      dpi,
		workDir:  options.WorkDir,
	}
}

// CheckAvailable reports whether the external OCR tools can be found.
func CheckAvailable() error {
	for _, tool := range []string{"pdftoppm", "tesseract"} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s", ErrToolNotFound, tool)
		}
	}
	return nil
}

func (r *Recognizer) Extract(ctx context.Context, data []byte) (domain.ExtractedText, error) {
	dir, err := os.MkdirTemp(r.workDir, "ocr-*")
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("create ocr work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return domain.ExtractedText{}, fmt.Errorf("write ocr input: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	if _, err := r.runner.Run(ctx, "pdftoppm", "-r", strconv.Itoa(r.dpi), "-png", input, prefix); err != nil {
		return domain.ExtractedText{}, fmt.Errorf("render pages: %w", err)
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("list rendered pages: %w", err)
	}
	if len(images) == 0 {
		return domain.ExtractedText{}, fmt.Errorf("render pages: no page images produced")
	}
	// pdftoppm zero-pads page numbers to equal width, so lexical order is page order.
	sort.Strings(images)

	pages := make([]string, 0, len(images))
	for i, image := range images {
		if err := ctx.Err(); err != nil {
			return domain.ExtractedText{}, err
		}
		out, err := r.runner.Run(ctx, "tesseract", image, "stdout", "-l", r.language)
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("recognize page %d: %w", i+1, err)
		}
		text := strings.ReplaceAll(string(out), domain.PageBreak, " ")
		pages = append(pages, strings.TrimSpace(text))
	}

	return domain.ExtractedText{
		Text:      strings.Join(pages, domain.PageBreak),
		PageCount: len(pages),
		Method:    domain.ExtractionOCR,
	}, nil
}
