package main

import "github.com/alechenninger/keyinfo/internal/cli"

func main() {
	cli.Execute()
}
