// Command veil is the PII anonymization service and CLI.
package main

import (
	"os"

	"github.com/dativo-io/veil/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
