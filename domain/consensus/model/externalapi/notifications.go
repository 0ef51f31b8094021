package externalapi

// Warning identifies a condition reported through WarningSet and
// WarningUnset.
type Warning uint8

// Kernel warnings.
const (
	// WarningUnknownNewRulesActivated is raised when blocks signal an
	// unknown soft fork that has activated.
	WarningUnknownNewRulesActivated Warning = iota

	// WarningLargeWorkInvalidChain is raised when an invalid chain has
	// significantly more work than the active one.
	WarningLargeWorkInvalidChain
)

func (w Warning) String() string {
	switch w {
	case WarningUnknownNewRulesActivated:
		return "UNKNOWN_NEW_RULES_ACTIVATED"
	case WarningLargeWorkInvalidChain:
		return "LARGE_WORK_INVALID_CHAIN"
	}
	return "UNKNOWN_WARNING"
}

// Notifications receives chain events. Hooks run synchronously on the
// goroutine that triggered them and must return promptly. A panicking hook is
// recovered and logged.
type Notifications interface {
	// BlockTip is called when the active tip changes.
	BlockTip(state SynchronizationState, tip *BlockInfo, verificationProgress float64)

	// HeaderTip is called when the best known header advances.
	HeaderTip(state SynchronizationState, height int32, timestamp int64, presync bool)

	// Progress reports on long running operations such as reindexing.
	Progress(title string, progressPercent int, resumePossible bool)

	WarningSet(warning Warning, message string)
	WarningUnset(warning Warning)

	// FlushError reports a failure to persist state that did not stop the
	// chain manager.
	FlushError(message string)

	// FatalError reports a failure after which the chain manager refuses
	// all further work. The process is expected to shut down.
	FatalError(message string)
}

// NopNotifications implements Notifications with empty hooks. Embed it to
// implement only the hooks of interest.
type NopNotifications struct{}

// BlockTip implements Notifications.
func (NopNotifications) BlockTip(SynchronizationState, *BlockInfo, float64) {}

// HeaderTip implements Notifications.
func (NopNotifications) HeaderTip(SynchronizationState, int32, int64, bool) {}

// Progress implements Notifications.
func (NopNotifications) Progress(string, int, bool) {}

// WarningSet implements Notifications.
func (NopNotifications) WarningSet(Warning, string) {}

// WarningUnset implements Notifications.
func (NopNotifications) WarningUnset(Warning) {}

// FlushError implements Notifications.
func (NopNotifications) FlushError(string) {}

// FatalError implements Notifications.
func (NopNotifications) FatalError(string) {}
