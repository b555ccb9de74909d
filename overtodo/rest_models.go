// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

// REST/JSON models shared by the todo API server and its clients.

// Item is a single todo entry as it travels over the wire.
// The "_id" field name is kept for compatibility with existing clients.
type Item struct {
	ID       string `json:"_id,omitempty"` // Stable server id, or a client-minted temp id while unconfirmed
	Body     string `json:"body"`          // Non-empty text
	Complete bool   `json:"complete"`      // Defaults to false on create
}

// CreateItemRequest is the body of POST /api/todos
type CreateItemRequest struct {
	Body string `json:"body"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse confirms operations that have no item to return (DELETE)
type MessageResponse struct {
	Message string `json:"message"`
}

// StatusResponse is returned by health endpoints
type StatusResponse struct {
	Status string `json:"status"`
}
