// main package for tts-desk
package main

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"
)

// Log file names.
const (
	bootstrapLogFileName = "tts-desk-bootstrap.log"
	logFileName          = "tts-desk.log"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in '%s': %w", logPath, err)
	}

	return log, nil
}

func run() error {
	return newRootCommand().Execute()
}

func main() {
	err := run()
	if err != nil {
		os.Exit(1)
	}
}
