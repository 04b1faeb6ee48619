// Package backend binds user data to a finalized code image and invokes it.
//
// A Function goes through Constructed, Initialized and Closed. Binding a
// set or buffer to a formal argument stages it for the next Init; binding
// to a global extern writes the extern slot immediately. Init builds the
// path indices the image reads, allocates temporaries and, when the entry
// point takes arguments, generates a separate harness image whose
// argument-free functions call the entry point with the bound actuals.
package backend
