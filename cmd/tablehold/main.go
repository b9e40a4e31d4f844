package main

import "github.com/example/tablehold/cmd"

func main() {
	cmd.Execute()
}
