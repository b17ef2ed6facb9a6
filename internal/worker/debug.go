package worker

import (
	"log"
	"os"
	"strings"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("QUIZZAI_WORKER_DEBUG"), "1")

// DebugEnabled reports whether QUIZZAI_WORKER_DEBUG=1 was set at startup.
func DebugEnabled() bool {
	return workerDebugEnabled
}

// Debugf logs only when worker debugging is enabled.
func Debugf(format string, args ...interface{}) {
	if workerDebugEnabled {
		log.Printf(format, args...)
	}
}

func debugLog(format string, args ...interface{}) {
	Debugf(format, args...)
}
