// Command papersearch indexes scientific paper records and serves search
// over them.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/cmd/papersearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
