// Package builtin bundles the core's default protocol library: a small
// set of .psf definitions good enough to exercise every carrier kind the
// core supports without requiring an operator to author their own before
// the first connection (spec §4.3, §4.10 "ships a small built-in set").
package builtin

import "embed"

//go:embed protocols/*.psf
var Protocols embed.FS
