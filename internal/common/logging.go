package common

import (
	"io"
	"log"
	"os"
)

var (
	logger = log.New(os.Stderr, "[cpergate] ", log.LstdFlags|log.Lmicroseconds)
)

// SetOutput redirects the package logger, e.g. to a rotating file writer.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	logger.SetOutput(w)
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

// Warnf logs a firmware or input problem that does not abort processing.
func Warnf(format string, args ...interface{}) {
	logger.Printf("WARN: "+format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
