package main

import "eve-arbitrage/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
