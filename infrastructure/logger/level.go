package logger

import "strings"

// Level is the severity threshold of a logger or a log writer. Entries
// below it are dropped.
type Level uint32

// Levels, from the most to the least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelTags = [...]string{"TRC", "DBG", "INF", "WRN", "ERR", "CRT", "OFF"}

var levelsByName = map[string]Level{
	"trace":    LevelTrace,
	"debug":    LevelDebug,
	"info":     LevelInfo,
	"warn":     LevelWarn,
	"error":    LevelError,
	"critical": LevelCritical,
	"off":      LevelOff,
}

func init() {
	for level, tag := range levelTags {
		levelsByName[strings.ToLower(tag)] = Level(level)
	}
}

// LevelFromString accepts a level's full name or its three-letter tag, in
// any case. It returns LevelInfo and false for anything else.
func LevelFromString(s string) (Level, bool) {
	level, ok := levelsByName[strings.ToLower(s)]
	if !ok {
		return LevelInfo, false
	}
	return level, true
}

// String returns the three-letter tag written in front of log entries.
func (l Level) String() string {
	if l >= LevelOff {
		return levelTags[LevelOff]
	}
	return levelTags[l]
}
