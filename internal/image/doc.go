// Package image models finalized code images: named globals living in a
// mem.Space and callable functions with a fixed formal signature.
//
// An image is built by defining globals and functions, then finalized once.
// Finalization resolves declared external functions through a Linker and
// fixes every address; afterwards the image can only be queried and called.
// Code that needs new parameterization must be put in a new image that
// links against the old one.
package image
