// Package checkpoint lets an interrupted run pick up where it stopped.
//
// A checkpoint is a JSON file named after the run, stored under the user
// data directory (XDG_DATA_HOME/igengage/checkpoints on Linux). It lists
// every username that already produced a result, successful or not.
//
// Usage:
//
//	mgr, err := checkpoint.NewManager("nightly", log)
//	cp, err := mgr.Start("nightly", runID, resume)
//	todo, skipped := cp.Filter(requests)
//	...
//	mgr.Record(result)
//	mgr.Flush()
//
// Saves go through storage.WriteFileAtomic so a crash never leaves a
// truncated checkpoint behind.
package checkpoint
