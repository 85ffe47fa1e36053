package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trident/internal/storagegraph"
)

var explainCmd = &cobra.Command{
	Use:   "explain <host-config.yaml>",
	Short: "Render a host configuration's storage graph and mount table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hc, err := loadHostConfig(args[0])
		if err != nil {
			return err
		}
		g, err := storagegraph.Build(hc)
		if err != nil {
			return err
		}

		tree, err := g.Render()
		if err != nil {
			return err
		}
		fmt.Print(tree)

		entries := g.Fstab(func(n *storagegraph.Node) string {
			return "/dev/disk/by-partlabel/" + n.ID
		})
		if len(entries) == 0 {
			return nil
		}

		heading := color.New(color.FgCyan, color.Bold)
		heading.Println("\nmount table")
		for _, e := range entries {
			fmt.Printf("  %-40s %-12s %-8s %s\n", e.Source, e.MountPoint, e.FsType, e.Options)
		}

		var total uint64
		for _, d := range hc.Storage.Disks {
			for _, p := range d.Partitions {
				if p.Size.IsFixed() {
					total += p.Size.Bytes()
				}
			}
		}
		fmt.Printf("\n%d disks, %s of fixed partitions\n", len(hc.Storage.Disks), humanize.IBytes(total))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
}
