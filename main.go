package main

import "github.com/rumbo-ai/rumbo/cmd"

func main() {
	cmd.Execute()
}
