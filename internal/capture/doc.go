// Package capture interprets generator API traffic: it finds the task
// identifier in submit responses, reads generation status, and flattens
// completed responses into Metadata.
//
// Everything here is pure; the browser and HTTP layers feed it decoded
// bodies.
package capture
