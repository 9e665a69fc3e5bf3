package main

import "github.com/vietddude/listen/internal/cli"

func main() {
	cli.Execute()
}
