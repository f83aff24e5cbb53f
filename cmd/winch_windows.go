//go:build windows

package cmd

import (
	"os"
	"time"

	"velo/pkg/session"

	"golang.org/x/term"
)

// Windows has no SIGWINCH, poll the console size instead
func monitorWindowResize(sess *session.Session, done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastW, lastH, _ := term.GetSize(int(os.Stdin.Fd()))
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w, h, err := term.GetSize(int(os.Stdin.Fd()))
			if err != nil {
				continue
			}
			if w != lastW || h != lastH {
				lastW, lastH = w, h
				sendTermSize(sess)
			}
		}
	}
}
