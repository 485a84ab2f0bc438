// Package tasks orchestrates audio through object storage, the ML service and the database.
//
// # Core Operations
//
// [Pipeline] exposes four operations:
//
//  1. [Pipeline.Harmonize] : Full upload → transform → persist run
//     - Validates the upload (non-empty, allowed type, size limit)
//     - Stores the original in the original bucket
//     - Sends the original to the ML service
//     - Stores the result in the transformed bucket
//     - Records both rows in one transaction, the transformed row pointing at the original via pair_id
//
//  2. [Pipeline.Transform] : Anonymous transform, nothing is stored
//
//  3. [Pipeline.SavePair] : Persist a pair the client already holds
//     - Uploads both files concurrently, then records them together
//
//  4. [Pipeline.DeletePair] : Remove a saved pair's rows, then its objects
//
// # Partial Failure
//
// Once an object has been written, any later failure triggers compensating deletes of every object written by that run.
// Cleanup runs on a context detached from the request, so a client disconnect does not strand objects.
// Cleanup errors are logged and never replace the error that caused the failure.
//
// # Progress Reporting
//
// [Pipeline.Harmonize] accepts an optional channel of [ProgressUpdate]. Sends never block; updates are dropped when the channel is full.
package tasks
