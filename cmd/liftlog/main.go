package main

import "github.com/jmcleod/liftlog/cmd/liftlog/cmd"

func main() {
	cmd.Execute()
}
