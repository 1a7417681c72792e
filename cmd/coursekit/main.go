package main

import "github.com/avolkov/coursekit/cmd/coursekit/cmd"

func main() {
	cmd.Execute()
}
