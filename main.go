package main

import "starflow/cmd"

func main() {
	cmd.Execute()
}
