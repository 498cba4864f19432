// Package store implements the directory-backed work item store. Each
// state is a directory under one root; an item's current state is the
// directory holding its file, and every transition is a single rename.
//
// The layout under the root:
//
//	intake/            items waiting to be claimed
//	claimed/<agent>/   items owned by one agent
//	review/            items parked for human review
//	approved/          items cleared for publishing
//	rejected/          terminal: refused items
//	done/              terminal: archive of completed items
//	errors/            explicit parking for failed items
//	audit/             append-only transition logs
//	coordinator/       cross-channel tracking state
//
// Correctness rests on one property of the backing filesystem: rename(2)
// is atomic, and when two processes rename the same source path, exactly
// one succeeds and the other observes ENOENT. POSIX guarantees this.
// Materializing a brand-new identity additionally uses O_EXCL exclusive
// create, so an identity can never silently appear twice.
package store
