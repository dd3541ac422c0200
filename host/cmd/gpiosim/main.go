// Command gpiosim runs simulated GPIO boards: interactively, as a remote
// board behind a serial link, or as a host talking to one.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gpiosim/board"
)

var (
	verbose    bool
	boardsFile string
	boardName  string

	rootCmd = &cobra.Command{
		Use:   "gpiosim",
		Short: "GPIO interrupt simulator",
		Long:  "Simulates GPIO controllers, their pin state and the interrupt lines they raise.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&boardsFile, "boards", "", "board file to use instead of the built-in boards")
	rootCmd.PersistentFlags().StringVarP(&boardName, "board", "b", "cmsdk", "board to simulate")
}

func loadBoards() (board.Descriptions, error) {
	if boardsFile == "" {
		return board.Defaults(), nil
	}
	return board.LoadFile(boardsFile)
}

// buildBoard instantiates the board selected by --board
func buildBoard() (*board.Board, error) {
	descs, err := loadBoards()
	if err != nil {
		return nil, err
	}
	desc, err := descs.Find(boardName)
	if err != nil {
		return nil, err
	}
	return board.Build(desc, slog.Default())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
