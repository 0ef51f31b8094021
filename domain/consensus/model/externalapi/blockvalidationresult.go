package externalapi

import "fmt"

// BlockValidationResult classifies why a block failed validation.
type BlockValidationResult uint8

// The closed set of block validation results.
const (
	// BlockResultUnset means the block was not judged, or it is valid.
	BlockResultUnset BlockValidationResult = iota

	// BlockConsensus is any consensus rule violation not covered below.
	BlockConsensus

	// BlockCachedInvalid means the block was judged invalid earlier; the
	// original reason is not retained.
	BlockCachedInvalid

	// BlockInvalidHeader covers bad proof of work, difficulty, version or a
	// timestamp at or before the median time past.
	BlockInvalidHeader

	// BlockMutated means the block body does not match the header's
	// commitments, so the data may have been altered in transit.
	BlockMutated

	// BlockMissingPrev means the parent is unknown. Resubmitting after the
	// parent arrives may succeed.
	BlockMissingPrev

	// BlockInvalidPrev means the block descends from an invalid block.
	BlockInvalidPrev

	// BlockTimeFuture means the timestamp is too far ahead of the clock.
	BlockTimeFuture

	// BlockHeaderLowWork means the header chain has too little work.
	BlockHeaderLowWork
)

var blockValidationResultStrings = map[BlockValidationResult]string{
	BlockResultUnset:   "BLOCK_RESULT_UNSET",
	BlockConsensus:     "BLOCK_CONSENSUS",
	BlockCachedInvalid: "BLOCK_CACHED_INVALID",
	BlockInvalidHeader: "BLOCK_INVALID_HEADER",
	BlockMutated:       "BLOCK_MUTATED",
	BlockMissingPrev:   "BLOCK_MISSING_PREV",
	BlockInvalidPrev:   "BLOCK_INVALID_PREV",
	BlockTimeFuture:    "BLOCK_TIME_FUTURE",
	BlockHeaderLowWork: "BLOCK_HEADER_LOW_WORK",
}

func (r BlockValidationResult) String() string {
	if s, ok := blockValidationResultStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("<unknown result (%d)>", r)
}

// ValidationMode is the coarse outcome of a validation.
type ValidationMode uint8

// Validation modes.
const (
	ModeValid ValidationMode = iota
	ModeInvalid
	ModeInternalError
)

func (m ValidationMode) String() string {
	switch m {
	case ModeValid:
		return "valid"
	case ModeInvalid:
		return "invalid"
	case ModeInternalError:
		return "internal error"
	}
	return fmt.Sprintf("<unknown mode (%d)>", m)
}

// BlockValidationState is the verdict on one block.
type BlockValidationState struct {
	Mode   ValidationMode
	Result BlockValidationResult
	Reason string
}

// IsValid returns whether the block passed validation.
func (s *BlockValidationState) IsValid() bool {
	return s.Mode == ModeValid
}

func (s *BlockValidationState) String() string {
	if s.Mode == ModeValid {
		return "valid"
	}
	if s.Reason == "" {
		return fmt.Sprintf("%s (%s)", s.Mode, s.Result)
	}
	return fmt.Sprintf("%s (%s): %s", s.Mode, s.Result, s.Reason)
}
