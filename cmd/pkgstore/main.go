package main

import "github.com/aweris/pkgstore/cmd/pkgstore/cmd"

func main() {
	cmd.Execute()
}
