// Package preflight provides readiness checks for the filesystem paths,
// browser binary and sites that tunesmith depends on.
//
// The CLI "tunesmith preflight" command prints every result, and the submit
// and distribute commands call RunAll before launching a browser so a
// misconfigured install fails in seconds rather than mid-generation.
// Network checks only run when requested.
package preflight
