package main

import (
	"github.com/opengrid/gridctl/cmd"
)

func main() {
	cmd.Execute()
}
