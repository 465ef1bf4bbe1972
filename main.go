package main

import "github.com/kindredbots/kindred/cmd"

func main() {
	cmd.Execute()
}
