package rating

import "errors"

// Sentinel kinds for rating engine errors. Both indicate programmer
// error at the call site, not an operational condition.
var (
	ErrInvalidState     = errors.New("invalid rating state")
	ErrArgumentMismatch = errors.New("opponents and outcomes must have equal non-zero length")
)
