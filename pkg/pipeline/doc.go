// Package pipeline is the composition root of an engagement run.
//
// Run validates the configuration, resolves the proxy source (reading a
// stored password through auth when the config has none), filters out
// usernames a resumed run already finished, then dispatches the rest and
// streams every result into the sink, the checkpoint and the progress
// reporters as it completes. The returned Summary counts what happened.
package pipeline
