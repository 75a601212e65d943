package main

import "github.com/ZacxDev/mirrortex/cmd"

func main() {
	cmd.Execute()
}
