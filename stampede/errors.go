package stampede

import "errors"

// ErrLockUnavailable is returned by Coordinator.ComputeOnce under
// policy.StampedeDistributedLock when the distributed lock could not be
// acquired (held by a peer). Callers are expected to treat this as a
// signal to read a colder tier rather than as a failure.
var ErrLockUnavailable = errors.New("stampede: distributed lock unavailable")
