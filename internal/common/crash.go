package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// crashDir is where crash reports are written; set by InstallCrashHandler
var crashDir = "logs"

// InstallCrashHandler sets the crash report directory, normally the log
// directory, and creates it.
func InstallCrashHandler(dir string) {
	if dir != "" {
		crashDir = dir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create %s: %v\n", crashDir, err)
	}
}

// WriteCrashFile writes a report for a recovered panic and returns its path,
// or "" when the file could not be written and the report went to stderr.
func WriteCrashFile(panicVal interface{}, stack []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== AMSC CRASH REPORT ===\n")
	fmt.Fprintf(&b, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n", GetFullVersion())
	fmt.Fprintf(&b, "GOOS/GOARCH: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "\n=== PANIC ===\n%v\n", panicVal)
	fmt.Fprintf(&b, "\n=== STACK ===\n%s\n", stack)
	fmt.Fprintf(&b, "\n=== ALL GOROUTINES ===\n%s\n", allStacks())

	path := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, b.String())
		return ""
	}
	fmt.Fprintf(os.Stderr, "\n!!! amsc crashed, report saved to %s !!!\nPanic: %v\n", path, panicVal)
	return path
}

// RecoverWithCrashFile is deferred at the top of main. A panic is written
// to a crash file and the process exits non-zero.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, debug.Stack())
		os.Exit(2)
	}
}

func allStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 16*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}
