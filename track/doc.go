// Package track records which parts of a state tree a computation read and
// answers whether any of those parts differ between two trees.
//
// Wrap returns a View over a root node. Every Get, Has, Keys and Len call
// made through the view (and through child views it hands out) is recorded
// in an AccessMap keyed by node identity. Changed then walks only the
// recorded edges, comparing values by identity, so the cost of an
// invalidation check is bounded by the number of paths the computation
// touched rather than by the size of the tree.
//
// A View that escapes the computation (returned, exported, unwrapped) is
// marked whole: from then on any identity change of that node counts as a
// change, because the consumer may read anything below it.
package track
