// Package forth implements a small embeddable Forth interpreter: an
// indirect-threaded virtual machine backed by one contiguous cell array,
// together with the dictionary compiler, outer interpreter, and image
// serializer needed to bootstrap and save/restore a running instance.
//
// The register layout, word-header format, and opcode set are modeled
// closely on the classic single-file "libforth" design: registers occupy
// fixed low cells, word headers chain backward through a PWD field, and
// the entire instruction set fits in a single dispatch switch so that adding
// high level Forth behavior (conditionals, loops, defining words) is a
// matter of compiling primitives together rather than adding new opcodes.
//
// A VM is not safe for concurrent use; construct one VM per goroutine that
// needs independent Forth state.
package forth
