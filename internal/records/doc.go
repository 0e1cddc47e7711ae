// Package records persists songs and releases in SQLite.
//
// The store is the system of record between runs: every submission and
// distribution transition is written through it as it happens, so a crash
// leaves each item at its last recorded state. ResetInFlight returns such
// items to where a fresh run can pick them up.
package records
