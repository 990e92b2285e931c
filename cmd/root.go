// Package cmd implements the thin cobra CLI that exercises the core
// library: diskinfo (geometry dump), dir (directory listing/file cat)
// and tapeinfo (tape block geometry), mirroring the teacher's one
// cobra.Command per verb.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dragondisk",
	Short: "Read and write Dragon/Tandy CoCo floppy images and tapes",
}

// Execute runs the CLI, exiting the process with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mediaType resolves the image format to use: an explicit flag value
// takes priority, otherwise it is inferred from the file's extension,
// matching the teacher's cmd.mediaType(flag, filename) helper.
func mediaType(flag, filename string) string {
	if flag != "" {
		return strings.ToLower(flag)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepathExt(filename)), ".")
	return ext
}

func filepathExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
