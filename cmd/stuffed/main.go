package main

import "github.com/aweris/stuffed/cmd/stuffed/cmd"

func main() {
	cmd.Execute()
}
