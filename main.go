package main

import (
	"os"

	"github.com/conneroisu/scriptsmith/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
