package main

import "serial-logterm/cmd"

func main() {
	cmd.Execute()
}
