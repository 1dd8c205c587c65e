//go:build !gosseract

package engine

import "errors"

// ErrGosseractNotEnabled is returned when the binary was built without the
// gosseract tag. Rebuild with -tags gosseract (requires libtesseract).
var ErrGosseractNotEnabled = errors.New("gosseract engine not enabled; rebuild with -tags gosseract")

type GosseractEngine struct{}

func NewGosseractEngine() (*GosseractEngine, error) {
	return nil, ErrGosseractNotEnabled
}

func (g *GosseractEngine) ProcessImage(_, _ string) (string, error) {
	return "", ErrGosseractNotEnabled
}

func (g *GosseractEngine) Close() error {
	return nil
}
