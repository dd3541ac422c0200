package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-tty"
	"github.com/spf13/cobra"
)

var (
	ttyDevice string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Simulate a board interactively",
		Long:  "Builds the selected board and reads console commands. Type help for the list.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := buildBoard()
			if err != nil {
				return err
			}
			if ttyDevice != "" {
				t, err := tty.OpenDevice(ttyDevice)
				if err != nil {
					return fmt.Errorf("open %s: %w", ttyDevice, err)
				}
				defer t.Close()
				return repl(newSession(b, t.Output()), t.ReadString, t.Output())
			}

			in := bufio.NewScanner(os.Stdin)
			next := func() (string, error) {
				if !in.Scan() {
					if err := in.Err(); err != nil {
						return "", err
					}
					return "", io.EOF
				}
				return in.Text(), nil
			}
			out := cmd.OutOrStdout()
			return repl(newSession(b, out), next, out)
		},
	}
)

func init() {
	runCmd.Flags().StringVar(&ttyDevice, "tty", "", "terminal device to read commands from")
	rootCmd.AddCommand(runCmd)
}

// repl reads lines from next until quit or end of input
func repl(s *session, next func() (string, error), out io.Writer) error {
	fmt.Fprintf(out, "Simulating %s with ports %s\n", s.board.Name, strings.Join(portList(s), ", "))
	fmt.Fprintln(out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	for {
		fmt.Fprint(out, "> ")
		line, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		err = s.exec(strings.TrimSpace(line))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
	}
}

func portList(s *session) []string {
	var names []string
	for _, p := range s.board.Ports() {
		names = append(names, p.Name())
	}
	return names
}
