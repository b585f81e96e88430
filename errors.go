package mpf

// constError is an error type that can be used to define immutable error
// constants, following the pattern used throughout the trie's teacher
// lineage (common.ConstError): a comparable sentinel that still satisfies
// the error interface, so callers can use errors.Is without allocating.
type constError string

func (e constError) Error() string { return string(e) }

const (
	// ErrStoreUnavailable indicates the backing store failed an operation.
	// If it occurred before any in-memory mutation step committed, the
	// trie handle remains consistent; otherwise the caller must discard
	// the handle and reload from the store.
	ErrStoreUnavailable = constError("mpf: store unavailable")

	// ErrConcurrentMutation indicates a second mutating operation
	// (Insert, Delete, Save) was started on a handle while another was
	// still in flight. This is fatal for the handle: its in-memory state
	// may be mid-transition.
	ErrConcurrentMutation = constError("mpf: concurrent mutation on trie handle")

	// ErrCorruptNode indicates a fetched blob failed to decode, or its
	// decoded hash did not match the key it was stored under.
	ErrCorruptNode = constError("mpf: corrupt node")

	// ErrInvariantViolation indicates a branch with fewer than two
	// non-empty children was observed, or two distinct keys were found to
	// share a 64-nibble path. Both indicate a bug or store tampering.
	ErrInvariantViolation = constError("mpf: invariant violation")

	// ErrKeyAbsent signals a missing key internally during descent. Get
	// reports absence through its second return value, not this error;
	// Delete treats it as a no-op and never surfaces it to callers
	// (spec.md §4.4, §7).
	ErrKeyAbsent = constError("mpf: key absent")

	// ErrProofMalformed indicates a proof's step list had the wrong shape
	// (an empty list where one was required, a Branch step whose
	// neighbors field was not 128 bytes, and so on). It is returned by the
	// JSON and binary proof decoders for malformed input, and by Verify
	// for a structurally invalid proof; Verify does not panic on such
	// input.
	ErrProofMalformed = constError("mpf: proof malformed")
)
