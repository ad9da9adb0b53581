package broker

import "errors"

// DuplicateIdConflict is returned by Enqueue when a caller submits a job id
// that already exists with a different record (§4.1). Resubmitting a
// byte-equal job is not an error — this is only raised on true collisions.
var DuplicateIdConflict = errors.New("broker: job id already exists with a different record")

// StoreUnavailable wraps a durable-store failure surfaced to a caller. It is
// never used to explain observable-only conditions (missing lease, already
// settled job, unknown id) — those are dropped with a log line, per §7.
var StoreUnavailable = errors.New("broker: durable store unavailable")
