package main

import "github.com/nextlevelbuilder/localcoder/cmd"

func main() {
	cmd.Execute()
}
