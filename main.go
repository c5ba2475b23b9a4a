package main

import "github.com/kozaktomas/photo-triage/cmd"

func main() {
	cmd.Execute()
}
