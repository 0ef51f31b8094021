package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used to create all subsystem loggers.
// It drops every message until a sink is attached and Run is called.
var BackendLog = NewBackend()

// SubsystemTags is an enum of all sub system tags
var SubsystemTags = struct {
	KRNL,
	VALD,
	STOR,
	COIN,
	LVDB,
	RIDX,
	BENC,
	CHST,
	CNFM string
}{
	KRNL: "KRNL",
	VALD: "VALD",
	STOR: "STOR",
	COIN: "COIN",
	LVDB: "LVDB",
	RIDX: "RIDX",
	BENC: "BENC",
	CHST: "CHST",
	CNFM: "CNFM",
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]*Logger{
	SubsystemTags.KRNL: BackendLog.Logger(SubsystemTags.KRNL),
	SubsystemTags.VALD: BackendLog.Logger(SubsystemTags.VALD),
	SubsystemTags.STOR: BackendLog.Logger(SubsystemTags.STOR),
	SubsystemTags.COIN: BackendLog.Logger(SubsystemTags.COIN),
	SubsystemTags.LVDB: BackendLog.Logger(SubsystemTags.LVDB),
	SubsystemTags.RIDX: BackendLog.Logger(SubsystemTags.RIDX),
	SubsystemTags.BENC: BackendLog.Logger(SubsystemTags.BENC),
	SubsystemTags.CHST: BackendLog.Logger(SubsystemTags.CHST),
	SubsystemTags.CNFM: BackendLog.Logger(SubsystemTags.CNFM),
}

// InitLog attaches log file and error log file to the backend log and starts
// it.
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
	err = BackendLog.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting the logger: %s ", err)
		os.Exit(1)
	}
}

// Get returns a logger of a specific sub system
func Get(tag string) (logger *Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// SetLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored. Uninitialized subsystems are dynamically created as
// needed.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level. It also dynamically creates the subsystem loggers as needed, so it
// can be used to initialize the logging system.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetLogLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid. Accepted forms are a single level ("debug") or a comma separated
// list of subsystem=level pairs ("VALD=trace,STOR=debug").
func ParseAndSetLogLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if _, ok := LevelFromString(debugLevel); !ok {
			return errors.Errorf("the specified debug level [%s] is invalid -- "+
				"supported levels %s", debugLevel, strings.Join(SupportedLevels(), ", "))
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return errors.Errorf("the specified debug level contains an invalid "+
				"subsystem/level pair [%s]", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return errors.Errorf("the specified subsystem [%s] is invalid -- "+
				"supported subsystems %s", subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		if _, ok := LevelFromString(logLevel); !ok {
			return errors.Errorf("the specified debug level [%s] is invalid -- "+
				"supported levels %s", logLevel, strings.Join(SupportedLevels(), ", "))
		}
		SetLogLevel(subsysID, logLevel)
	}
	return nil
}
