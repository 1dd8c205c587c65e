package ocr

import (
	"fmt"
	"strings"
)

// Engine is a command-line recognizer with a built-in invocation preset.
type Engine int

const (
	Tesseract Engine = iota
	Cuneiform
)

var engineNames = map[Engine]string{
	Tesseract: "tesseract",
	Cuneiform: "cuneiform",
}

func (e Engine) String() string {
	if name, ok := engineNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Engine(%d)", int(e))
}

// Template returns the preset command. Cuneiform does not add an extension on
// its own, so the preset asks for one explicitly.
func (e Engine) Template() string {
	switch e {
	case Cuneiform:
		return "cuneiform -l eng -f text -o %txt_out%.txt %img_in%"
	default:
		return "tesseract -l eng %img_in% %txt_out%"
	}
}

func ParseEngine(name string) (Engine, error) {
	for e, n := range engineNames {
		if strings.EqualFold(n, name) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown command engine: %s", name)
}

func Presets() []Engine {
	return []Engine{Tesseract, Cuneiform}
}
