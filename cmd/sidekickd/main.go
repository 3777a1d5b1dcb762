package main

import "github.com/sidekickd/sidekick/cmd/sidekickd/cmd"

func main() {
	cmd.Execute()
}
