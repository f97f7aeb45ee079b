package main

import "mailgate/cmd/mailgate/cmd"

func main() {
	cmd.Execute()
}
