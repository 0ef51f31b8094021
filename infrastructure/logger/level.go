package logger

import "strings"

// Level orders log messages by severity. A logger drops every message below
// its own level, and a writer drops every message below the level it was
// attached with.
type Level uint32

// Log levels, from the most to the least verbose. The first three match the
// levels of the kernel logging interface.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

// levelNames holds, per level, the three letter tag printed in log lines
// followed by the names accepted when parsing.
var levelNames = [...][]string{
	LevelTrace:    {"TRC", "trace"},
	LevelDebug:    {"DBG", "debug"},
	LevelInfo:     {"INF", "info"},
	LevelWarn:     {"WRN", "warn", "warning"},
	LevelError:    {"ERR", "error"},
	LevelCritical: {"CRT", "critical"},
	LevelOff:      {"OFF", "off"},
}

// LevelFromString parses a level name or tag, ignoring case. It returns
// LevelInfo and false for anything else.
func LevelFromString(s string) (Level, bool) {
	for level, names := range levelNames {
		for _, name := range names {
			if strings.EqualFold(s, name) {
				return Level(level), true
			}
		}
	}
	return LevelInfo, false
}

// SupportedLevels returns the canonical name of every level, most verbose
// first.
func SupportedLevels() []string {
	supported := make([]string, len(levelNames))
	for level, names := range levelNames {
		supported[level] = names[1]
	}
	return supported
}

// String returns the tag printed in log lines. Levels at or above LevelOff
// print as "OFF".
func (l Level) String() string {
	if l >= LevelOff {
		return levelNames[LevelOff][0]
	}
	return levelNames[l][0]
}
