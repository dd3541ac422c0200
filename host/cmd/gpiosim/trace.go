package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	traceFormat string
	traceOut    string

	traceCmd = &cobra.Command{
		Use:   "trace SCRIPT",
		Short: "Run a command script and save the waveform",
		Long: "Runs the console commands in SCRIPT against the selected board and writes " +
			"every pin and interrupt line change as a PNG or VCD waveform.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := buildBoard()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s := newSession(b, cmd.OutOrStdout())
			if err := runScript(s, f); err != nil {
				return err
			}
			return writeTrace(s.rec.Samples(), traceFormat, traceOut, b.Name)
		},
	}
)

func init() {
	traceCmd.Flags().StringVarP(&traceFormat, "format", "f", "vcd", "waveform format, png or vcd")
	traceCmd.Flags().StringVarP(&traceOut, "output", "o", "trace.vcd", "file to write")
	rootCmd.AddCommand(traceCmd)
}

// runScript executes every line of r, stopping at the first failure
func runScript(s *session, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		err := s.exec(strings.TrimSpace(sc.Text()))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}
