package main

import (
	"github.com/iokuper/bmcqa/internal/cli"

	_ "github.com/iokuper/bmcqa/internal/testers"
)

func main() {
	cli.Execute()
}
