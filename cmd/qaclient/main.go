// Command qaclient is a terminal front end for the campus Q&A forum.
//
// Every invocation restores the session persisted by the last `qaclient
// login`, runs one command through the same session, cache and vote layers a
// graphical front end would use, and exits.
//
//	qaclient login --email a@b.com
//	qaclient questions list --search go
//	qaclient questions vote 42 up
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sakif/campus-client/internal/client"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	a := &app{newClient: client.New}
	if err := a.execute(context.Background(), a.rootCmd()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		os.Exit(1)
	}
}
