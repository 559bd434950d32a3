// Package api exposes the indexer's control surface over HTTP: task
// submission and status polling. Handlers translate between wire DTOs and
// the service layer, and keep internal error detail out of responses.
package api
