package main

import "github.com/mabhi256/jarc/cmd"

func main() {
	cmd.Execute()
}
