package logs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cube2222/octoplan/config"
)

var logFile *os.File

// InitializeFileLogger sends rule traces to octoplan.log in the cache directory.
func InitializeFileLogger() {
	if err := openLogFile(config.OctoplanCacheDir); err != nil {
		log.Printf("logging to stderr: %s", err)
	}
}

func openLogFile(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("couldn't create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "octoplan.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("couldn't open log file: %w", err)
	}
	CloseLogger()
	logFile = f
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return nil
}

func CloseLogger() {
	if logFile == nil {
		return
	}
	log.SetOutput(os.Stderr)
	logFile.Close()
	logFile = nil
}
