package main

import (
	"os"

	"github.com/JayThibs/uk-bio-bank-chat-app/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
