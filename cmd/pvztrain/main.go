package main

import (
	"github.com/ChesterMargery/PVZTrain/cmd/pvztrain/cmds"
)

func main() {
	cmds.New().Execute()
}
