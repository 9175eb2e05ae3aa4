package main

import (
	"github.com/DrSkyle/idcreport/cmd/idcreport/commands"
)

func main() {
	commands.Execute()
}
