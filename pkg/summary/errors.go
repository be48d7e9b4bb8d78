package summary

import "errors"

var (
	// ErrFormat marks an input file whose layout does not match what the
	// harness is expected to produce. It aborts the whole scan; the file
	// has to be regenerated upstream.
	ErrFormat = errors.New("summary format error")

	// ErrUnrecognized is returned for files without a stamp line.
	ErrUnrecognized = errors.New("unrecognized summary format")

	// ErrMultipleHosts is returned for summaries that span more than one
	// host, kernel or mode.
	ErrMultipleHosts = errors.New("summary file has more than one host/kernel/mode")

	// ErrNoTests is returned for summaries without any test rows.
	ErrNoTests = errors.New("summary file has no test rows")
)

// IsSkippable reports whether err only disqualifies the file it came from.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrUnrecognized) ||
		errors.Is(err, ErrMultipleHosts) ||
		errors.Is(err, ErrNoTests)
}
