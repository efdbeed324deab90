package main

import "github.com/jcdickinson/symdex/cmd"

func main() {
	cmd.Execute()
}
