package ocr

import (
	"fmt"
	"os"

	"github.com/dmirauta/table-ocr/internal/ocr/engine"
)

// NewEngine builds the recognizer for engineType. A non-empty template
// overrides the preset of a command engine; "command" requires one.
func NewEngine(engineType string, template string) (OCREngine, error) {
	var e OCREngine
	var err error

	switch engineType {
	case "tesseract", "cuneiform", "":
		if template == "" {
			preset, perr := ParseEngine(engineType)
			if perr != nil {
				preset = Tesseract
			}
			template = preset.Template()
		}
		e, err = engine.NewCommandEngine(template)
	case "command":
		e, err = engine.NewCommandEngine(template)
	case "ollama":
		e = engine.NewOllamaEngine(os.Getenv("OLLAMA_HOST"), os.Getenv("OLLAMA_MODEL"))
	case "gosseract":
		e, err = engine.NewGosseractEngine()
	default:
		return nil, fmt.Errorf("unknown engine type: %s", engineType)
	}
	if err != nil {
		return nil, err
	}

	return e, nil
}
