// Package logs reads the rotating JSON log back for `tunesmith logs`.
//
// Tail returns the last lines of the file or everything after an offset, and
// can wait for new lines in follow mode. Entries parse the JSON records the
// logging package writes so the CLI can filter by song, level or component
// and print them in a compact form.
package logs
