// Package cmd holds the auxiliary CLI commands attached to the server
// binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"camgrid/internal/config"
)

// CreateValidateCmd creates the validate command. It checks a slot
// configuration file without starting the server.
func CreateValidateCmd() *cobra.Command {
	var slotsFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the camera slot configuration file",
		Long:  `Parses the slot definitions file and checks its structural invariants: slot count, index uniqueness and range, grid dimensions, and URL syntax. Exits non-zero on the first problem found.`,
		Run: func(_ *cobra.Command, _ []string) {
			file, err := config.LoadSlotsFile(slotsFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			if err := config.ValidateSlots(&file); err != nil {
				fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
				os.Exit(1)
			}

			configured := 0
			for _, slot := range file.Slots {
				if slot.URL != "" {
					configured++
				}
			}
			fmt.Printf("%s: ok (%d slots, %d configured, grid %dx%d)\n",
				slotsFile, len(file.Slots), configured, file.Grid.Columns, file.Grid.Rows)
		},
	}

	cmd.Flags().StringVarP(&slotsFile, "slots", "s", "slots.toml", "Slot definitions file to validate")
	return cmd
}
