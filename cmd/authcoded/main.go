package main

import (
	"os"

	"lockbox.dev/authcode/cmd/authcoded/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
