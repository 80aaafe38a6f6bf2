package main

import "subgate.dev/cli/internal/interfaces/cli"

func main() {
	cli.Execute()
}
