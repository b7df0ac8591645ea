// Package syncengine reconciles the local action store with one external
// task provider.
//
// # Overview
//
// An Engine pairs an integration.Service (network I/O) with the action and
// sync record stores (persistence) and runs one of three flows:
//
//	Pull           external → local, external is the source of truth
//	Push           local → external, never clobbers a synced item unless
//	               overwrite mode is requested
//	Bidirectional  both ways, with the sync record's UpdatedAt as the pivot
//
// # Change detection
//
// Each sync record carries the last known synchronized instant. An action
// changed locally when its UpdatedAt is strictly after that instant; an
// external item changed when its LastEditedTime is strictly after it. Equal
// timestamps count as unchanged, and every mutation advances the record past
// both sides, so re-running immediately is a no-op.
//
// # Conflicts
//
// An item changed on both sides is always reported as a Conflict:
//
//	local_wins   local fields are pushed to the provider
//	remote_wins  local fields are overwritten from the provider
//	manual       nothing is mutated; the conflict stays pending
//
// # Error Handling
//
// Failing to fetch the external or local item set aborts the run: the
// Result has Success=false with a single error entry and a *BatchError is
// returned. Anything that fails for one item is appended to Result.Errors
// and the run continues with the next item.
//
// # Concurrency
//
// Items are processed in parallel up to the configured limit. Each item's
// record is read and written by a single goroutine. Two runs racing to link
// the same external item are arbitrated by the record store's uniqueness
// constraints; the loser treats the winner's record as authoritative.
package syncengine
