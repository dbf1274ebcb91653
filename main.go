package main

import "github.com/nextlevelbuilder/tabpilot/cmd"

func main() {
	cmd.Execute()
}
