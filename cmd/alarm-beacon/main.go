package main

import "github.com/oshokin/alarm-beacon/cmd/alarm-beacon/cmd"

func main() {
	cmd.Execute()
}
