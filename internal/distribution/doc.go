// Package distribution uploads finished songs to the distributor.
//
// A Release moves Draft → Ready once Prepare has validated its songwriter,
// audio and cover art, then Ready → Uploading → Submitted when Upload
// fills and submits the distributor's form. Live is set by the caller with
// MarkLive once the distributor confirms the release out of band.
//
// The distributor requires an interactive second-factor login. When the
// session is not signed in, Upload raises a Challenge through the
// OnChallenge hook and waits for a person to finish logging in within the
// visible browser window.
package distribution
