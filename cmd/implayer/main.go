package main

import "implayer/internal/cli"

func main() {
	cli.Execute()
}
