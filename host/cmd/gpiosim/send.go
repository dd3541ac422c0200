package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"gpiosim/host/serial"
	"gpiosim/protocol"
	"gpiosim/remote"
)

var (
	sendDevice string
	sendReply  string
	sendListen time.Duration

	sendCmd = &cobra.Command{
		Use:   "send COMMAND...",
		Short: "Send commands to a served board",
		Long: "Connects to a board started with serve and sends each argument as a command " +
			"written \"name key=value ...\". With --reply the last command waits for that " +
			"response. With --events the link stays open and prints what the board reports.",
		Example: `  gpiosim send -d tcp://localhost:7000 "bus_write addr=0x400e0e40 value=1"
  gpiosim send -d tcp://localhost:7000 -r pin_state "query_pin port=pioa pin=0"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := serial.Open(serial.DefaultConfig(sendDevice))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			host, err := remote.Dial(ctx, port, slog.Default())
			if err != nil {
				return err
			}
			defer host.Close()

			out := cmd.OutOrStdout()
			host.OnEvent(func(m remote.Message) { fmt.Fprintln(out, m) })
			if len(args) == 0 {
				fmt.Fprintf(out, "%s: %v\n", host.Dictionary().Config["BOARD"], host.Dictionary().Names())
			}
			return runCommands(ctx, host, args, out)
		},
	}
)

func init() {
	sendCmd.Flags().StringVarP(&sendDevice, "device", "d", "", "serial device or tcp://host:port of the board")
	sendCmd.Flags().StringVarP(&sendReply, "reply", "r", "", "response to wait for after the last command")
	sendCmd.Flags().DurationVar(&sendListen, "events", 0, "print board messages for this long after sending")
	rootCmd.AddCommand(sendCmd)
}

func runCommands(ctx context.Context, host *remote.Host, lines []string, out io.Writer) error {
	for i, line := range lines {
		if i == len(lines)-1 && sendReply != "" {
			m, err := host.Query(ctx, line, sendReply)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, m)
			continue
		}
		if err := host.SendLine(ctx, line); err != nil {
			return err
		}
	}
	if sendListen <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendListen)
	defer cancel()
	for {
		m, err := host.Next(ctx)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, protocol.ErrTimeout) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, m)
	}
}
