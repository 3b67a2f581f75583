package main

import "github.com/vaultgraph/vaultgraph/cmd"

func main() {
	cmd.Execute()
}
