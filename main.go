// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🚀 go-overtodo - Optimistic Todo Client")
	fmt.Println("=======================================")
	fmt.Println()
	fmt.Println("go-overtodo keeps a cached todo list responsive by applying every change")
	fmt.Println("immediately, then reconciling it with the server once the request settles.")
	fmt.Println()

	fmt.Println("📚 Available Examples:")
	fmt.Println()
	fmt.Println("1. 🌐 Todo Server (examples/todo_server/)")
	fmt.Println("   REST API for todos backed by PostgreSQL or memory")
	fmt.Println("   Features: optional JWT auth, CORS, dummy sign-in")
	fmt.Println("   Run: cd examples/todo_server && go run .")
	fmt.Println()

	fmt.Println("2. 📝 Todo CLI (examples/todo_cli/)")
	fmt.Println("   Command line client built on the optimistic cache")
	fmt.Println("   Features: concurrent completes, SQLite snapshot, live watch")
	fmt.Println("   Run: cd examples/todo_cli && go run . list")
	fmt.Println()
}
