package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var boardsCmd = &cobra.Command{
	Use:   "boards [NAME]",
	Short: "List boards or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		descs, err := loadBoards()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		defer tw.Flush()

		if len(args) == 0 {
			fmt.Fprintln(tw, "NAME\tDEVICES\tDESCRIPTION")
			for _, d := range descs {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Name, len(d.Devices), d.Description)
			}
			return nil
		}

		d, err := descs.Find(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s: %s\n\n", d.Name, d.Description)
		fmt.Fprintln(tw, "DEVICE\tFAMILY\tPINS\tWHERE\tIRQ")
		for _, dev := range d.Devices {
			where := fmt.Sprintf("%#08x", dev.Base)
			if dev.Address != 0 {
				where = fmt.Sprintf("i2c %#02x", dev.Address)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", dev.Name, dev.Family, dev.Pins, where, dev.IRQ)
		}
		if len(d.Links) > 0 {
			fmt.Fprintln(tw, "\nLINK FROM\tTO")
			for _, l := range d.Links {
				fmt.Fprintf(tw, "%s\t%s\n", l.From, l.To)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(boardsCmd)
}
