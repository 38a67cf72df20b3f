package snapshot

import "errors"

// ErrCorruptSnapshot is returned when the stored structure cannot be
// decoded. The Apartment treats it like a missing snapshot and rebuilds.
var ErrCorruptSnapshot = errors.New("snapshot: stored structure is corrupt")
