package vm

import (
	"context"
	"io"
	"os"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// console feeds key presses to step mode: every key lets one instruction run.
type console struct {
	originalTerminalConfig unix.Termios
	rawMode                bool
	stdin                  io.Reader
	keyBuffer              chan byte

	// descriptor polled before reads, -1 when stdin is not a file
	fd int
}

// pollKeyboard feeds keys from stdin until ctx ends or stdin is exhausted.
// A file is polled with a short timeout before each read, so the goroutine
// notices ctx even when no key ever arrives.
func (c *console) pollKeyboard(ctx context.Context) {
	buf := make([]byte, 1)
	for ctx.Err() == nil {
		if c.fd >= 0 {
			ready, err := unix.Poll([]unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}, 5)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return
			}
			if ready == 0 {
				continue
			}
		}
		n, err := c.stdin.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		select {
		case c.keyBuffer <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

// waitKey blocks until a key arrives or ctx ends.
func (c *console) waitKey(ctx context.Context) error {
	select {
	case <-c.keyBuffer:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// this configures the terminal to run in raw mode, when stdin is one
func (c *console) enableRawMode() {
	fd := os.Stdin.Fd()
	if !term.IsTerminal(int(fd)) {
		return
	}
	if err := termios.Tcgetattr(fd, &c.originalTerminalConfig); err != nil {
		return
	}
	newTermios := c.originalTerminalConfig
	newTermios.Lflag &^= unix.ICANON | unix.ECHO
	if termios.Tcsetattr(fd, termios.TCSANOW, &newTermios) == nil {
		c.rawMode = true
	}
}

func (c *console) disableRawMode() {
	if !c.rawMode {
		return
	}
	termios.Tcsetattr(os.Stdin.Fd(), termios.TCSANOW, &c.originalTerminalConfig)
	c.rawMode = false
}

func newConsole(stdin io.Reader) *console {
	c := &console{
		stdin:     stdin,
		keyBuffer: make(chan byte, 1),
		fd:        -1,
	}
	if f, ok := stdin.(*os.File); ok {
		c.fd = int(f.Fd())
	}
	return c
}
