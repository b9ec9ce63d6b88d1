package main

import (
	"os"

	"github.com/gabisonia/fiber-chat-proxy/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
