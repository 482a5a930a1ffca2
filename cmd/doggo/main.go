package main

import "github.com/doggo-build/doggo/cmd/doggo/internal"

func main() {
	internal.Execute()
}
