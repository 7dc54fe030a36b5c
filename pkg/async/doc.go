// Package async runs functions in goroutines and hands back typed futures.
//
//	f := async.Async(ctx, recordID, store.GetRecord)
//	rec, err := f.Await()
//
// WaitAll collects a batch of futures, waiting for all of them even when some
// fail.
package async
