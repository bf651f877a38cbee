package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
)

// appSupportDir is where the log file and saved settings live.
var appSupportDir string

func init() {
	goExecutablePath, err := os.Executable()
	if err != nil {
		log.Fatalf("Could not get executable path: %v", err)
	}
	base := filepath.Dir(goExecutablePath)

	switch runtime.GOOS {
	case "windows":
		base = filepath.Join(os.Getenv("LOCALAPPDATA"), "EDLgen")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("failed to get home dir: %v", err)
		}
		base = filepath.Join(home, "Library", "Application Support", "EDLgen")
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("failed to get home dir: %v", err)
		}
		base = filepath.Join(home, ".local", "EDLgen")
	}

	_ = os.MkdirAll(base, 0755)
	appSupportDir = base

	logFile, err := os.Create(filepath.Join(base, "log.txt"))
	if err == nil {
		mw := io.MultiWriter(os.Stdout, logFile)
		log.SetOutput(mw)
	}
}
