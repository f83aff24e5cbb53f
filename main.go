package main

import "velo/cmd"

func main() {
	cmd.Execute()
}
