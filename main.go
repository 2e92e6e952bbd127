package main

import (
	"context"

	"github.com/cube2222/octoplan/cmd"
)

func main() {
	cmd.Execute(context.Background())
}
