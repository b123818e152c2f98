// Package imaging implements the whiteboard enhancement pass: grayscale
// conversion, percentile contrast stretch, and an unsharp mask.
package imaging
