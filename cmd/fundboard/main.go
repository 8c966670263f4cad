package main

import (
	_ "time/tzdata"

	"fundboard/internal/commands"
)

func main() {
	commands.Execute()
}
