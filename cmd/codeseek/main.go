package main

import "github.com/seekr-dev/codeseek/internal/cli"

func main() {
	cli.Execute()
}
