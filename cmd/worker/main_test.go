package main

import (
	"testing"

	_ "github.com/dsd-finance/finance-hub/internal/testing/guard"
)

func TestMainSkipsInTestMode(t *testing.T) {
	main()
}
