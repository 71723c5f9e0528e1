package main

import (
	"os"
	"testing"

	"github.com/joho/godotenv"
)

// TestMain runs before all tests and loads .env if available
func TestMain(m *testing.M) {
	// CI has no .env file
	_ = godotenv.Load()

	os.Exit(m.Run())
}
