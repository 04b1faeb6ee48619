// Package programs holds reference compiled programs: finalized images and
// the runtime descriptions a code generator would emit for them. They
// exercise the backend end to end and back the CLI's run command.
package programs
