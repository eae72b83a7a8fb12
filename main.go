package main

import "github.com/KaramelBytes/dataloom-agent/cmd"

func main() {
	cmd.Execute()
}
