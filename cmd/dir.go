package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dragontools/dragondisk/disk"
	"github.com/dragontools/dragondisk/filesystem"
	"github.com/dragontools/dragondisk/filesystem/dragondos"
	"github.com/dragontools/dragondisk/filesystem/flex"
	"github.com/dragontools/dragondisk/filesystem/os9"
	"github.com/dragontools/dragondisk/filesystem/rsdos"
	"github.com/dragontools/dragondisk/image"
	"github.com/dragontools/dragondisk/storage"
)

var (
	dirMediaType string
	dirFsType    string
)

var dirCmd = &cobra.Command{
	Use:                   "dir FILE [FILENAME]",
	Short:                 "List a disk's directory, or print one file's contents",
	Long:                  `Read a disk image's filesystem and list its files, or, given a second argument, print that file's contents to stdout.`,
	Args:                  cobra.RangeArgs(1, 2),
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

		d, err := image.Open(src, "."+mediaType(dirMediaType, filename), false)
		if err != nil {
			fmt.Fprintln(os.Stderr, "disk open error:", err)
			os.Exit(1)
		}
		defer d.Dispose()

		fs, err := openFilesystem(d, dirFsType)
		if err != nil {
			fmt.Fprintln(os.Stderr, "filesystem open error:", err)
			os.Exit(1)
		}

		if len(args) == 2 {
			catFile(fs, args[1])
			return
		}
		listDirectory(fs)
	},
}

// openFilesystem dispatches to the requested filesystem driver the way
// cmd.mediaType dispatches image codecs, since the filesystem layer
// has no format-sniffing equivalent to image.Open — a filesystem is
// never self-describing the way a disk image's header is.
func openFilesystem(d disk.Disk, fsType string) (filesystem.Filesystem, error) {
	switch fsType {
	case "rsdos":
		return rsdos.Open(d), nil
	case "flex":
		return flex.Open(d, d.Heads()), nil
	case "os9":
		return os9.Open(d)
	case "dragondos", "":
		return dragondos.Open(d, d.Heads(), d.Tracks()), nil
	default:
		return nil, fmt.Errorf("unsupported filesystem type: %q", fsType)
	}
}

func listDirectory(fs filesystem.Filesystem) {
	files, err := fs.ListFiles()
	if err != nil {
		fmt.Fprintln(os.Stderr, "directory read error:", err)
		os.Exit(1)
	}
	for _, info := range files {
		fmt.Printf("%-16s %8d\n", info.Name, info.Size)
	}
	free, err := fs.Free()
	if err != nil {
		fmt.Fprintln(os.Stderr, "free-space error:", err)
		return
	}
	fmt.Printf("\n%d bytes free\n", free)
}

func catFile(fs filesystem.Filesystem, name string) {
	file, err := fs.ReadFile(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}
	os.Stdout.Write(file.Data)
}

func init() {
	dirCmd.Flags().StringVarP(&dirMediaType, "media", "m", "", `Disk image media type, default: file extension`)
	dirCmd.Flags().StringVar(&dirFsType, "fs", "dragondos", `Filesystem type: dragondos, rsdos, flex, os9`)
	rootCmd.AddCommand(dirCmd)
}
