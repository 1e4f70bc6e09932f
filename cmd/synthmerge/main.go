package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/prajaktaborse1234/synthmerge/internal/commands"
)

func main() {
	// API keys named by api_key_env may live in a .env file
	_ = godotenv.Load()

	if err := commands.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
