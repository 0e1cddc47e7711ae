// Package submission turns a song request into a verified audio file on
// disk.
//
// A Pipeline moves a WorkItem through explicit states: it fills the
// generator's create form, captures the task identifier from intercepted API
// traffic, polls the status endpoint, then tries the download strategies in
// order (status API URL, listing-page recovery, constructed storage URL)
// until one produces a file the verifier accepts. Every state change is a
// Transition recorded on the item, handed to the Recorder and emitted as an
// Event. Cancellation is honoured between transitions and inside every wait,
// and a cancelled download never leaves a file at its final path.
package submission
