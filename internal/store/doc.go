// Package store declares the persistence interfaces and error vocabulary
// the rest of the indexer programs against, keeping the workflow and API
// layers independent of the concrete database.
package store
