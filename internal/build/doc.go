// Package build implements the documentation build chain as an ordered stage
// pipeline: prepare, compile, convert, publish.
//
// The compiler and converter are external command-line tools; this package only
// sequences their invocations. Stages run strictly in order and the first
// failure aborts the remainder, so a later stage never observes a partially
// finished earlier one. The converter batch is single-threaded: one subprocess
// at a time, in directory listing order, with no per-file isolation or retry.
package build
