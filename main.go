package main

import "github.com/rand/fathom/internal/cmd"

func main() {
	cmd.Execute()
}
