package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks problems with the data or parameters given to the
	// engine. They are reported to the user as-is.
	ErrInput = errors.New("invalid input")

	// ErrInsufficientSky is returned when the undetected background does
	// not yield enough clumps to learn an S/N threshold. It wraps ErrInput.
	ErrInsufficientSky = fmt.Errorf("%w: not enough sky clumps", ErrInput)

	// ErrInvariant marks an internal inconsistency. It indicates a bug and
	// aborts the whole run.
	ErrInvariant = errors.New("internal invariant violated")
)

// insufficientSky builds the user-facing error for a too small sky sample,
// including the knobs that can be loosened.
func insufficientSky(got, want int) error {
	return fmt.Errorf("%w: %d usable clumps in the undetected regions, at least %d are needed; "+
		"try a smaller minSkyFrac, smaller tiles, a smaller minNumSky or give snThreshold directly",
		ErrInsufficientSky, got, want)
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)
}
