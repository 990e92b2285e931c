package main

import "github.com/dragontools/dragondisk/cmd"

func main() {
	cmd.Execute()
}
