// Package draft implements copy-on-write batching over immutable trees.
//
// A Draft wraps the root of a published snapshot. Nodes handed out by the
// draft accept Set and Delete calls, but nothing is written in place: each
// write is recorded as a pending operation against the node it targets, and
// reads resolve pending operations first, falling back to the snapshot.
//
// On the first write the draft indexes back-references from every child to
// the parents holding it, and extends the index as containers are written.
// Reads never touch the index. A write marks its target dirty and the flag
// is propagated along back-references that are still live, so a node shared
// under several keys dirties all of them. Commit
// then shallow-copies only dirty nodes, applies their pending operations and
// relinks copied children; every clean subtree is reused by reference.
//
// After Commit the draft is closed. Writes arriving through its nodes later
// (for example from a goroutine started by an action) are forwarded to the
// Fallback with the node's path, so the caller can publish them one by one.
package draft
