package main

import (
	"os"

	"github.com/maxkimambo/qtask/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
