// Package main は運用向けの管理 CLI (portalctl) です。
package main

import (
	"fmt"
	"os"

	"github.com/yourusername/eco-portal/internal/config"
)

func main() {
	s := newSession(config.Load, os.Stdout)
	err := newRootCommand(s).Execute()
	if closeErr := s.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
