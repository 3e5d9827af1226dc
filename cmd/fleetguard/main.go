package main

import "github.com/jmcleod/fleetguard/cmd/fleetguard/cmd"

func main() {
	cmd.Execute()
}
