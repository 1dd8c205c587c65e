//go:build gosseract

package engine

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// GosseractEngine recognizes in-process through libtesseract instead of
// spawning a command. Build with -tags gosseract.
type GosseractEngine struct {
	language string
}

func NewGosseractEngine() (*GosseractEngine, error) {
	return &GosseractEngine{language: "eng"}, nil
}

func (g *GosseractEngine) ProcessImage(imagePath, _ string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(g.language); err != nil {
		return "", fmt.Errorf("setting language %s: %w", g.language, err)
	}
	// A cell is a single block of text.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("setting page segmentation mode: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("setting image %s: %w", imagePath, err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("failed to extract text from image %s: %w", imagePath, err)
	}
	return text, nil
}

func (g *GosseractEngine) Close() error {
	return nil
}
