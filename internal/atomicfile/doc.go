// Package atomicfile provides a crash-safe file replacement primitive.
// A replacement either fully succeeds or leaves the previous contents of
// the target path byte-identical to what they were before the attempt.
package atomicfile
