// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

// Route constants for the todo REST API
const (
	PathRoot     = "/"
	PathHealth   = "/api/health"
	PathTodos    = "/api/todos"
	PathTodoByID = "/api/todos/{id}"
)

// Error messages written into ErrorResponse.Error
const (
	MsgBodyRequired   = "Body is required"
	MsgInvalidID      = "Invalid ID"
	MsgTodoNotFound   = "Todo not found"
	MsgInvalidRequest = "Invalid request body"
	MsgListFailed     = "Failed to fetch todos"
	MsgCreateFailed   = "Failed to create todo"
	MsgUpdateFailed   = "Failed to update todo"
	MsgDeleteFailed   = "Failed to delete todo"
	MsgUnauthorized   = "Unauthorized"
)

// MsgDeleted is the confirmation message returned by DELETE
const MsgDeleted = "Todo deleted successfully"

// DefaultUserID owns all items when the server runs without authentication
const DefaultUserID = "anonymous"
