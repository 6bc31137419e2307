// Package services holds the client-side sync logic: the Delta Sync Client,
// the Push Queue flusher, the read-through catalog and small helpers that
// persist session state in the metadata repository.
package services
