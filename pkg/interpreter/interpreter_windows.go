//go:build windows

package interpreter

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/UserExistsError/conpty"
)

const (
	cmdPrompt = "Windows\\system32\\cmd.exe"
)

type Interpreter struct {
	Arch          string   `json:"Arch"`
	System        string   `json:"System"`
	User          string   `json:"User"`
	HomeDir       string   `json:"HomeDir"`
	Hostname      string   `json:"Hostname"`
	Shell         string   `json:"Shell"`
	ShellArgs     []string `json:"ShellArgs"`
	ShellExecArgs []string `json:"ShellExecArgs"`
	AltShell      string   `json:"AltShell"`
	PtyOn         bool     `json:"PtyOn"`
	ColorOn       bool     `json:"ColorOn"`
}

type winPty struct {
	cpty *conpty.ConPty
}

func (p *winPty) Read(b []byte) (n int, err error)  { return p.cpty.Read(b) }
func (p *winPty) Write(b []byte) (n int, err error) { return p.cpty.Write(b) }
func (p *winPty) Close() error                      { return p.cpty.Close() }
func (p *winPty) Resize(cols, rows uint32) error {
	return p.cpty.Resize(int(cols), int(rows))
}
func (p *winPty) Wait() error {
	if _, err := p.cpty.Wait(context.Background()); err != nil {
		return err
	}
	return nil
}

// StartShellPty launches the shell command line under ConPTY
func StartShellPty(commandLine string, cols, rows uint32) (Pty, error) {
	cpty, err := conpty.Start(commandLine, conpty.ConPtyDimensions(int(cols), int(rows)))
	if err != nil {
		return nil, fmt.Errorf("failed to start conpty - %v", err)
	}
	return &winPty{cpty: cpty}, nil
}

func NewInterpreter() (*Interpreter, error) {
	i := &Interpreter{}

	i.Arch = runtime.GOARCH
	i.System = runtime.GOOS
	var hErr error
	i.Hostname, hErr = os.Hostname()
	if hErr != nil {
		i.Hostname = "--"
	}
	i.User = "--"
	i.HomeDir = "C:\\"
	if u, uErr := user.Current(); uErr == nil {
		i.User = u.Username
		i.HomeDir = u.HomeDir
		fUserName := strings.Split(u.Username, string(os.PathSeparator))
		// If the username does not identify a Domain User,
		// remove the hostname part from the username
		if fUserName[0] == i.Hostname {
			i.User = fUserName[1]
		}
	}

	i.PtyOn = conpty.IsConPtyAvailable()
	i.ColorOn = i.PtyOn

	systemDrive := os.Getenv("SYSTEMDRIVE")
	if systemDrive == "" {
		// Try default if not automatically detected
		systemDrive = "C:"
	}
	// Command Prompt is the safer default when launching from Term
	i.Shell = fmt.Sprintf("%s\\%s", systemDrive, cmdPrompt)
	i.AltShell = i.Shell
	i.ShellArgs = []string{}
	i.ShellExecArgs = []string{"/c"}

	return i, nil
}
