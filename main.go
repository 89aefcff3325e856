package main

import "github.com/validata-io/validata/cmd"

func main() {
	cmd.Execute()
}
