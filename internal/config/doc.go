// Package config loads and validates the indexer's settings from INDEXER_
// environment variables and an optional config file, exposing them as typed
// groups (server, database, graph, twitter, indexer, queue).
package config
