package worker

import (
	"log/slog"
	"os"
	"strings"
)

var (
	workerDebugEnabled = strings.EqualFold(os.Getenv("ROUNDTABLE_WORKER_DEBUG"), "1")
	debugLogger        = slog.Default()
)

func debugLog(msg string, args ...any) {
	if workerDebugEnabled {
		debugLogger.Info(msg, args...)
	}
}
