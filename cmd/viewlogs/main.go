package main

import "github.com/fight5566jay/Explainable-Mortal/internal/cmd"

func main() {
	cmd.Execute()
}
