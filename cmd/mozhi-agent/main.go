package main

import "github.com/mozhi/agent/cmd/mozhi-agent/cmd"

func main() {
	cmd.Execute()
}
