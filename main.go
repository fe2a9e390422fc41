package main

import "comiconv/cmd"

func main() {
	cmd.Execute()
}
