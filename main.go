package main

import "github.com/audiolibrelab/rmxr/cmd"

func main() {
	cmd.Execute()
}
