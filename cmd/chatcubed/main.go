package main

import (
	"flag"

	"go.uber.org/fx"

	"github.com/rochat/chatcube/internal/daemon"
)

func main() {
	home := flag.String("home", "", "data directory (default ~/.chatcube)")
	flag.Parse()

	fx.New(daemon.Module(daemon.Params{Home: *home})).Run()
}
