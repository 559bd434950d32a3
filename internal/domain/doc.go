// Package domain holds the indexer's core entities and rules: tasks and
// their status machine, timeline objects and their graph mapping, indexed
// ranges with post-ID ordering, and access tokens. Nothing here touches a
// database, the network, or a queue.
package domain
