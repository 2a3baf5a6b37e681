// Package gcroots implements the heap's root registry: the
// static root set supplied by the embedding VM plus a mutex-guarded
// dynamic root array used by native code holding a reference across a
// yield point.
package gcroots
