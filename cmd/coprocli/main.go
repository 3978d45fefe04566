package main

import (
	"github.com/robotalks/copro.go/pkg/cli/sh"
	"github.com/robotalks/copro.go/pkg/config"

	_ "github.com/robotalks/copro.go/pkg/cli/cmds/linkctl"
)

//go-build: CGO_ENABLED=0

func init() {
	config.SetupFlags()
}

func main() {
	sh.Main()
}
