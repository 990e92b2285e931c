package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dragontools/dragondisk/tape"
)

var tapeinfoMinLeader int

var tapeinfoCmd = &cobra.Command{
	Use:                   "tapeinfo FILE",
	Short:                 "Print a cassette tape image's block geometry",
	Long:                  `Scan a raw cassette tape bit-stream dump and print each framed block: a header block's name, file type, flags and addresses, a data block's length and checksum, the way commodore_geometry prints Commodore tape geometry.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		filename := args[0]

		data, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		stream := tape.NewStream(data)
		for {
			block, err := stream.Next(tapeinfoMinLeader)
			if err != nil {
				if err == io.EOF || err == tape.ErrSyncNotFound {
					break
				}
				fmt.Fprintln(os.Stderr, "tape read error:", err)
				os.Exit(1)
			}
			if block == nil {
				fmt.Println("end of file block")
				break
			}
			switch b := block.(type) {
			case tape.Header:
				fmt.Printf("header: name=%q type=%v ascii=%t gapped=%t load=0x%04X start=0x%04X\n",
					b.Name, b.FileType, b.IsASCII, b.IsGapped, b.LoadAddr, b.StartAddr)
			case tape.DataBlock:
				fmt.Printf("data: %d bytes, checksum=0x%02x\n", len(b.Payload), b.Checksum)
			}
		}
	},
}

func init() {
	tapeinfoCmd.Flags().IntVar(&tapeinfoMinLeader, "min-leader", 1, `Minimum consecutive leader bytes required before a sync byte`)
	rootCmd.AddCommand(tapeinfoCmd)
}
