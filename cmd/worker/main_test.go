package main

import (
	"testing"

	_ "github.com/orderdesk/authz/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	main()
}
