package main

import "github.com/dlbridge/dlbridge/cmd"

func main() {
	cmd.Execute()
}
