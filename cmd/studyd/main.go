package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lfelipe/studyhall/internal/daemon"
	"github.com/lfelipe/studyhall/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	serverFlag := flag.String("server", "", "remote service URL (overrides config)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			ServerURL:   session.ResolveServerURL(*serverFlag),
		}),
	)

	app.Run()
}
