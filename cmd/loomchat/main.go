package main

import "github.com/loomchat/loomchat/cmd/loomchat/cmd"

func main() {
	cmd.Execute()
}
