package main

import "github.com/jmcleod/docproof/cmd/docproof/cmd"

func main() {
	cmd.Execute()
}
