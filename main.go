package main

import "goodzwork-checkin/cmd"

func main() {
	cmd.Execute()
}
