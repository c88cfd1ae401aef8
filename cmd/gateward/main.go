package main

import "github.com/ppiankov/gateward/internal/cli"

func main() {
	cli.Execute()
}
