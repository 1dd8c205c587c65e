package data

import "strings"

// CleaningOptions toggles the post-processing applied to every cell's raw
// recognizer output. Steps run in field order.
type CleaningOptions struct {
	TrimWhitespace  bool `json:"trim_whitespace"`
	TrimSingleQuote bool `json:"trim_single_quote"`
	TrimDoubleQuote bool `json:"trim_double_quote"`
	NoNewlines      bool `json:"no_newlines"`
}

func DefaultCleaningOptions() CleaningOptions {
	return CleaningOptions{
		TrimWhitespace:  true,
		TrimSingleQuote: true,
		TrimDoubleQuote: true,
		NoNewlines:      true,
	}
}

// singleQuotes includes U+2018, which recognizers often emit for an apostrophe.
const singleQuotes = "'‘"

func Clean(raw string, opts CleaningOptions) string {
	text := raw
	if opts.TrimWhitespace {
		text = strings.TrimSpace(text)
	}
	if opts.TrimSingleQuote {
		text = strings.Trim(text, singleQuotes)
	}
	if opts.TrimDoubleQuote {
		text = strings.Trim(text, `"`)
	}
	if opts.NoNewlines {
		text = strings.ReplaceAll(text, "\n", "")
	}
	return text
}
