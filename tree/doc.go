// Package tree defines the immutable data model shared by the store engine.
//
// State is a graph of containers and scalars. Containers are *Object (string
// keyed records) and *List (ordered sequences). Both are immutable once
// built; identity is pointer identity, so two snapshots that share a subtree
// share the same *Object. Any other Go value is a scalar.
//
// Container is the read-side accessor every consumer goes through, which is
// what lets the track and draft packages intercept reads and writes without
// a schema: a tracked view and a draft node satisfy the same interface as a
// plain node.
//
// Freeze turns plain Go maps and slices into nodes (deep, cycle safe),
// Export turns nodes back into plain values, and Undraft replaces engine
// wrappers found inside arbitrary values with their resolved nodes.
package tree
