package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:     "mentorai",
		Short:   "Realtime voice conversations with a roster of mentor agents",
		Version: Version,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "configuration file (YAML)")

	root.AddCommand(runCmd(), agentsCmd(), historyCmd(), testWebhookCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
