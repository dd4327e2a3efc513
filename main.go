package main

import "github.com/ValentinKolb/kvsys/cmd"

func main() {
	cmd.Execute()
}
