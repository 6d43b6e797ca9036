package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kaspanet/fedstore/infrastructure/logger"
)

var log = logger.RegisterSubSystem("INSP")

// initLog logs to files only, so that stdout carries nothing but the
// records.
func initLog(logDir string, logLevel string) error {
	logFile := filepath.Join(logDir, defaultLogFilename)
	errLogFile := filepath.Join(logDir, defaultErrLogFilename)

	err := logger.BackendLog.AddLogFile(logFile, logger.LevelTrace)
	if err != nil {
		return err
	}
	err = logger.BackendLog.AddLogFile(errLogFile, logger.LevelWarn)
	if err != nil {
		return err
	}
	err = logger.BackendLog.Run()
	if err != nil {
		return err
	}
	return logger.ParseAndSetLogLevels(logLevel)
}

func printErrorAndExit(message string) {
	fmt.Fprintf(os.Stderr, "%s\n", message)
	if logger.BackendLog.IsRunning() {
		logger.BackendLog.Close()
	}
	os.Exit(1)
}
