package main

import "github.com/tesola/staking-sync/cmd"

func main() {
	cmd.Execute()
}
