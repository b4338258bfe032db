package main

import "bookdex/cmd"

func main() {
	cmd.Execute()
}
