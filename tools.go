//go:build tools
// +build tools

// Package tools tracks code generators used via go generate (mockgen) as
// module dependencies.
package imagebot

import (
	_ "go.uber.org/mock/mockgen"
)
