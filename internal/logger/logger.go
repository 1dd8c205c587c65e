package logger

import (
	"log"
	"os"
)

func DebugEnabled() bool {
	return os.Getenv("DEBUG") == "1"
}

func DebugLog(format string, args ...any) {
	if DebugEnabled() {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func InfoLog(format string, args ...any) {
	log.Printf("[INFO] "+format, args...)
}

// ErrorLog is for failures that are contained (a single cell, a watcher event)
// and never propagate to the caller.
func ErrorLog(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}
