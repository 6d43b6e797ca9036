package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used to create all subsystem loggers.
var BackendLog = NewBackend()

var (
	subsystemLoggersMutex sync.Mutex
	subsystemLoggers      = make(map[string]*Logger)
)

// RegisterSubSystem returns the logger of the given subsystem, creating it
// on first use. It is meant to be called from package-level vars.
func RegisterSubSystem(subsystem string) *Logger {
	subsystemLoggersMutex.Lock()
	defer subsystemLoggersMutex.Unlock()

	logger, exists := subsystemLoggers[subsystem]
	if !exists {
		logger = BackendLog.Logger(subsystem)
		subsystemLoggers[subsystem] = logger
	}
	return logger
}

// InitLog attaches a log file and an error log file to BackendLog and
// starts it. Both files are rotated.
func InitLog(logFile, errLogFile string) {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding log file %s as log rotator for level %s: %s", logFile, LevelTrace, err)
		os.Exit(1)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding log file %s as log rotator for level %s: %s", errLogFile, LevelWarn, err)
		os.Exit(1)
	}
	InitLogStdout(LevelInfo)
}

// InitLogStdout attaches stdout to BackendLog at the given level and starts
// the backend if it isn't running yet.
func InitLogStdout(logLevel Level) {
	err := BackendLog.AddLogWriter(stdoutWriter{}, logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding stdout to the logger for level %s: %s", logLevel, err)
		os.Exit(1)
	}
	err = BackendLog.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting the logger: %s ", err)
		os.Exit(1)
	}
}

// SupportedSubsystems returns a sorted slice of the registered subsystems.
func SupportedSubsystems() []string {
	subsystemLoggersMutex.Lock()
	defer subsystemLoggersMutex.Unlock()

	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsystem := range subsystemLoggers {
		subsystems = append(subsystems, subsystem)
	}
	sort.Strings(subsystems)
	return subsystems
}

// SetLogLevel sets the level of one subsystem. Unknown subsystems are
// ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	subsystemLoggersMutex.Lock()
	defer subsystemLoggersMutex.Unlock()

	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the level of every registered subsystem.
func SetLogLevels(logLevel string) {
	for _, subsystemID := range SupportedSubsystems() {
		SetLogLevel(subsystemID, logLevel)
	}
}

// ParseAndSetLogLevels parses a level specification of the form
// "level" or "SUBSYS=level,SUBSYS2=level" and applies it.
func ParseAndSetLogLevels(logLevelSpec string) error {
	if !strings.Contains(logLevelSpec, ",") && !strings.Contains(logLevelSpec, "=") {
		if _, ok := LevelFromString(logLevelSpec); !ok {
			return errors.Errorf("the specified log level [%s] is invalid", logLevelSpec)
		}
		SetLogLevels(logLevelSpec)
		return nil
	}

	for _, logLevelPair := range strings.Split(logLevelSpec, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return errors.Errorf("the specified log level contains an invalid subsystem/level pair [%s]",
				logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsystemID, logLevel := fields[0], fields[1]

		if !subsystemExists(subsystemID) {
			return errors.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsystemID, strings.Join(SupportedSubsystems(), ", "))
		}
		if _, ok := LevelFromString(logLevel); !ok {
			return errors.Errorf("the specified log level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsystemID, logLevel)
	}
	return nil
}

func subsystemExists(subsystemID string) bool {
	subsystemLoggersMutex.Lock()
	defer subsystemLoggersMutex.Unlock()

	_, exists := subsystemLoggers[subsystemID]
	return exists
}
