package main

import "coauthor/internal/cli"

var version = "dev"

func main() {
	cli.Version = version
	cli.Execute()
}
