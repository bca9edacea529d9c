package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/ahk4918/microlink/cmd/microlink/app"
)

func main() {
	if err := app.NewApp().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
