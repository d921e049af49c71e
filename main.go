package main

import "github.com/markb/workhub/cmd"

func main() {
	cmd.Execute()
}
