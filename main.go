package main

import "github.com/Conflux-Chain/confura-pending-cache/cmd"

func main() {
	cmd.Execute()
}
