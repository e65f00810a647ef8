package main

import "github.com/devlens/devlens/internal/cli"

func main() {
	cli.Execute()
}
