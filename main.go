package main

import "github.com/devportal/chatstore/cmd"

func main() {
	cmd.Execute()
}
