package engine

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	ImagePlaceholder = "%img_in%"
	TextPlaceholder  = "%txt_out%"

	// TextExtension is what engines such as tesseract append to the output
	// path they are given.
	TextExtension = ".txt"
)

var (
	ErrEmptyTemplate    = errors.New("command template is empty")
	ErrJobSpawn         = errors.New("starting recognizer")
	ErrJobExit          = errors.New("recognizer exited abnormally")
	ErrJobOutputMissing = errors.New("recognizer output missing")
)

// CommandEngine runs an external recognizer per image. The process writes its
// result to a file; its stdout and stderr are discarded.
type CommandEngine struct {
	template string
}

func NewCommandEngine(template string) (*CommandEngine, error) {
	if len(strings.Fields(template)) == 0 {
		return nil, ErrEmptyTemplate
	}
	return &CommandEngine{template: template}, nil
}

func (c *CommandEngine) Template() string {
	return c.template
}

func (c *CommandEngine) ProcessImage(imagePath, textPath string) (string, error) {
	prog, args, err := SplitCommand(Materialize(c.template, imagePath, textPath))
	if err != nil {
		return "", err
	}

	// nil Stdout/Stderr means the null device.
	cmd := exec.Command(prog, args...)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrJobSpawn, prog, err)
	}
	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrJobExit, prog, err)
	}

	return ReadOutput(textPath)
}

func (c *CommandEngine) Close() error {
	return nil
}

func Materialize(template, imagePath, textPath string) string {
	cmd := strings.ReplaceAll(template, ImagePlaceholder, imagePath)
	return strings.ReplaceAll(cmd, TextPlaceholder, textPath)
}

// SplitCommand splits on whitespace. There is no quoting: paths containing
// spaces cannot be expressed in a template.
func SplitCommand(cmd string) (string, []string, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", nil, ErrEmptyTemplate
	}
	return fields[0], fields[1:], nil
}

// ReadOutput reads textPath+".txt", falling back to textPath itself.
func ReadOutput(textPath string) (string, error) {
	for _, candidate := range OutputPaths(textPath) {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: reading %s: %w", ErrJobOutputMissing, candidate, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrJobOutputMissing, textPath)
}

// OutputPaths lists every file a recognizer may have produced for textPath.
func OutputPaths(textPath string) []string {
	return []string{textPath + TextExtension, textPath}
}
