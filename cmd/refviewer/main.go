package main

import "github.com/bryanchriswhite/refviewer/cmd/refviewer/commands"

func main() {
	commands.Execute()
}
