// Package main is the entry of the clocktree command.
package main

import "github.com/sarchlab/clocktree/clocktree/cmd"

func main() {
	cmd.Execute()
}
