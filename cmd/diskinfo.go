package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dragontools/dragondisk/image"
	"github.com/dragontools/dragondisk/storage"
)

var diskinfoMediaType string

var diskinfoCmd = &cobra.Command{
	Use:                   "diskinfo FILE",
	Short:                 "Print a disk image's geometry",
	Long:                  `Open a disk image and print its head/track/writability geometry.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		filename := args[0]

		f, err := os.Open(filename)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()

		src, err := storage.OpenFile(f, false)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer src.Close()

		d, err := image.Open(src, "."+mediaType(diskinfoMediaType, filename), false)
		if err != nil {
			fmt.Fprintln(os.Stderr, "disk open error:", err)
			os.Exit(1)
		}
		defer d.Dispose()

		sectorCount := 0
		it := d.Sectors()
		for {
			_, ok := it.Next()
			if !ok {
				break
			}
			sectorCount++
		}

		fmt.Printf("heads:    %d\n", d.Heads())
		fmt.Printf("tracks:   %d\n", d.Tracks())
		fmt.Printf("writable: %t\n", d.Writable())
		fmt.Printf("sectors:  %d\n", sectorCount)
	},
}

func init() {
	diskinfoCmd.Flags().StringVarP(&diskinfoMediaType, "media", "m", "", `Media type, default: file extension`)
	rootCmd.AddCommand(diskinfoCmd)
}
