package main

import "amisweep/cmd"

func main() {
	cmd.Execute()
}
