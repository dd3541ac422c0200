package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"gpiosim/board"
	"gpiosim/host/serial"
	"gpiosim/remote"
)

var (
	serveDevice string
	serveListen string
	serveBaud   int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve a simulated board over a serial link or socket",
		Long: "Builds the selected board and answers host commands on a serial device " +
			"(--device) or on every TCP connection accepted at --listen.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (serveDevice == "") == (serveListen == "") {
				return errors.New("give exactly one of --device or --listen")
			}
			b, err := buildBoard()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if serveDevice != "" {
				cfg := serial.DefaultConfig(serveDevice)
				cfg.Baud = serveBaud
				port, err := serial.Open(cfg)
				if err != nil {
					return err
				}
				defer port.Close()
				return serveLink(ctx, b, port)
			}

			l, err := net.Listen("tcp", serveListen)
			if err != nil {
				return err
			}
			context.AfterFunc(ctx, func() { l.Close() })
			slog.Info("Listening", "addr", l.Addr().String(), "board", b.Name)
			err = serial.Listen(l, func(p serial.Port) error {
				return serveLink(ctx, b, p)
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&serveDevice, "device", "d", "", "serial device or tcp://host:port to serve on")
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "TCP address to accept hosts on")
	serveCmd.Flags().IntVar(&serveBaud, "baud", serial.DefaultBaud, "baud rate for --device")
	rootCmd.AddCommand(serveCmd)
}

// serveLink answers one host until the link closes. Link failures end the
// link, not the server.
func serveLink(ctx context.Context, b *board.Board, port serial.Port) error {
	if err := port.Flush(); err != nil {
		slog.Warn("Failed to flush link", "error", err)
	}
	srv, err := remote.NewServer(b, port, slog.Default())
	if err != nil {
		return err
	}
	slog.Info("Host connected", "board", b.Name)
	err = srv.Serve(ctx)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		slog.Warn("Link closed", "error", err)
	default:
		slog.Info("Host disconnected")
	}
	return nil
}
