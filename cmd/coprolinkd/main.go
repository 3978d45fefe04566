package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/config"
	"github.com/robotalks/copro.go/pkg/daemon"
	fx "github.com/robotalks/copro.go/pkg/framework"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()

	conf, err := config.NewConfig()
	if err != nil {
		glog.Exit(err)
	}
	d, err := daemon.New(conf)
	if err != nil {
		glog.Exit(err)
	}
	if err := fx.NewRunner().HandleSignals().Go(d).Wait(); err != nil {
		glog.Exit(err)
	}
}
