package main

import (
	"fmt"
	"io"
	"net/url"
)

// terminalNavigator is the CLI's answer to "go to the sign-in view": it
// prints how to sign in and, when there is one, the path the user was on.
type terminalNavigator struct {
	w          io.Writer
	signInPath string
}

func (n *terminalNavigator) SignIn(returnTo string) {
	target := n.signInPath
	if returnTo != "" {
		target += "?from=" + url.QueryEscape(returnTo)
	}
	fmt.Fprintf(n.w, "You need to sign in (%s). Run: qaclient login\n", target)
}
