package externalapi

import "fmt"

// Each of the following represent one of the phases the node may be in when
// its active tip changes.
const (
	SyncStateInitReindex SynchronizationState = iota
	SyncStateInitDownload
	SyncStatePostInit
)

// SynchronizationState represents the current sync phase of the chain
type SynchronizationState uint8

func (s SynchronizationState) String() string {
	switch s {
	case SyncStateInitReindex:
		return "SyncStateInitReindex"
	case SyncStateInitDownload:
		return "SyncStateInitDownload"
	case SyncStatePostInit:
		return "SyncStatePostInit"
	}

	return fmt.Sprintf("<unknown state (%d)>", s)
}
