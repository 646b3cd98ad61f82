package main

import "github.com/mmiszy/proto/cmd"

func main() {
	cmd.Execute()
}
