// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// UserIDOr returns the user ID from the context, or fallback when none was set
// (e.g. the server runs without authentication)
func UserIDOr(ctx context.Context, fallback string) string {
	if userID, ok := GetUserID(ctx); ok {
		return userID
	}
	return fallback
}
