package main

import "github.com/josephlewis42/smash/cmd"

func main() {
	cmd.Execute()
}
