package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "wabridge",
		Short: "Bridge between a WhatsApp provider and a conversation desk",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
