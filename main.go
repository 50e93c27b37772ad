package main

import "github.com/KaramelBytes/edalens/cmd"

func main() {
	cmd.Execute()
}
