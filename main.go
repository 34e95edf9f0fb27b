// Package main is responsible for the main func of duoproxy.  The actual
// work is done in the cmd package.
package main

import "duoproxy/internal/cmd"

func main() {
	cmd.Main()
}
