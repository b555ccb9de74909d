// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"strings"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// Validate checks input for a mutation of kind against current. Input is the body
// for create and the item id otherwise.
func Validate(kind MutationKind, input string, current []overtodo.Item) error {
	switch kind {
	case KindCreate:
		return ValidateCreate(input)
	case KindToggle:
		return ValidateToggle(current, input)
	case KindDelete:
		return ValidateDelete(current, input)
	}
	return &ValidationError{Kind: kind, ItemID: input, Reason: "unknown mutation kind"}
}

// ValidateCreate rejects bodies that are empty after trimming
func ValidateCreate(body string) error {
	if strings.TrimSpace(body) == "" {
		return &ValidationError{Kind: KindCreate, Reason: "body is required"}
	}
	return nil
}

// ValidateToggle requires the item to be cached and not yet complete. Pass the current
// cache contents: an in-flight toggle already shows the item as complete, so a second
// toggle of the same item is rejected.
func ValidateToggle(items []overtodo.Item, id string) error {
	i := indexOf(items, id)
	if i < 0 {
		return &ValidationError{Kind: KindToggle, ItemID: id, Reason: "todo not found"}
	}
	if items[i].Complete {
		return &ValidationError{Kind: KindToggle, ItemID: id, Reason: "todo is already completed"}
	}
	return nil
}

// ValidateDelete requires the item to be cached
func ValidateDelete(items []overtodo.Item, id string) error {
	if indexOf(items, id) < 0 {
		return &ValidationError{Kind: KindDelete, ItemID: id, Reason: "todo not found"}
	}
	return nil
}
