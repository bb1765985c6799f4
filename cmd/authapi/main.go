package main

import "github.com/terraconstructs/authuser/cmd/authapi/cmd"

func main() {
	cmd.Execute()
}
