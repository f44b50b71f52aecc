package main

import "wgobfs/cmd/run"

func main() {
	run.Execute()
}
