package main

import "github.com/nextlevelbuilder/upsrelay/cmd"

func main() {
	cmd.Execute()
}
