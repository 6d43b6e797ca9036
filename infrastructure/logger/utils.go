package logger

import (
	"time"
)

// SlowExecutionThreshold is the run time above which
// LogAndMeasureExecutionTime reports a run at warn level.
var SlowExecutionThreshold = 2 * time.Second

// LogAndMeasureExecutionTime logs the start of functionName at trace level
// and returns a function that logs its end with the elapsed time: at debug
// level, or at warn level if it took longer than SlowExecutionThreshold.
func LogAndMeasureExecutionTime(log *Logger, functionName string) (onEnd func()) {
	start := time.Now()
	log.Tracef("%s start", functionName)
	return func() {
		elapsed := time.Since(start)
		if elapsed > SlowExecutionThreshold {
			log.Warnf("%s end. Took: %s, more than %s", functionName, elapsed, SlowExecutionThreshold)
			return
		}
		log.Debugf("%s end. Took: %s", functionName, elapsed)
	}
}
