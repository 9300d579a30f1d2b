package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/bridge-runtime/session"
)

func main() {
	var (
		inFD        = flag.Int("in-fd", 0, "File descriptor commands arrive on")
		outFD       = flag.Int("out-fd", 1, "File descriptor responses are written to")
		intSize     = flag.Int("int-size", 8, "Negotiated integer width in bytes (1-8)")
		debug       = flag.Bool("debug", false, "Enable debug logging on stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		session.SetLogger(logger)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*intSize); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(*inFD, *outFD, *intSize); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serve runs one bridge session over the given descriptors until the
// peer terminates it. The demo namespaces are exposed through the
// resolver so a peer process has something to call.
func serve(inFD, outFD, intSize int) error {
	in := os.NewFile(uintptr(inFD), "bridge-in")
	out := os.NewFile(uintptr(outFD), "bridge-out")
	if in == nil || out == nil {
		return fmt.Errorf("invalid stream descriptors %d/%d", inFD, outFD)
	}

	s, err := session.New(session.Config{
		In:       in,
		Out:      out,
		IntSize:  intSize,
		Resolver: demoResolver(),
	})
	if err != nil {
		return err
	}
	return s.Serve()
}
