// Package debug provides opt-in diagnostic logging, enabled by setting
// TBD_DEBUG. Output goes to a rotating file under the user cache dir so it
// never pollutes command output.
package debug

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	logger *log.Logger
)

// Enabled reports whether debug logging is on.
func Enabled() bool {
	return os.Getenv("TBD_DEBUG") != ""
}

// Logf writes one diagnostic line when TBD_DEBUG is set.
func Logf(format string, args ...any) {
	if !Enabled() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = log.New(&lumberjack.Logger{
			Filename:   logPath(),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}, "", log.LstdFlags|log.Lmicroseconds)
	}
	logger.Printf(format, args...)
}

func logPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "tbd", "debug.log")
}
