package engine

import "errors"

// The error taxonomy for one project's evaluation. Every failure is fatal
// for that project's run and must not block other projects in a batch; no
// partial timeline is ever usable.
var (
	// ErrConfiguration marks an unusable project configuration: an
	// unrecognized finder variant or parser, an uncompilable pattern, or a
	// reference timeline missing a version the project supports.
	ErrConfiguration = errors.New("configuration error")

	// ErrRepository marks a failed repository operation: unknown ref,
	// missing earliest commit, missing branch.
	ErrRepository = errors.New("repository error")

	// ErrAmbiguity marks a sub-repository commit-resolution pattern that
	// matched more than one candidate commit at a single primary commit.
	ErrAmbiguity = errors.New("ambiguous sub-repository resolution")

	// ErrInvariant marks a domain invariant violation, e.g. two default
	// room versions detected at one commit. This indicates a defective
	// extraction pattern and fails loudly rather than guessing.
	ErrInvariant = errors.New("invariant violation")
)
