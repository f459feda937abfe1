// Command mqctl operates on named queues from the shell.
//
//	mqctl -name feedback send -priority 3 "hello"
//	mqctl -name feedback receive -timeout 5s
//	mqctl -name feedback destroy
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// Exit codes beyond the 0/1 success/failure split, so scripts can tell
// an empty or removed queue apart from a broken one.
const (
	exitEmpty   = 2
	exitRemoved = 3
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Errors built with cli.Exit carry their own code and exit inside RunContext
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "mqctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mqctl",
		Usage: "Send to, receive from and remove OS-named message queues",
		Flags: queueFlags(),
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Send one message, blocking while the queue is full",
				ArgsUsage: "<payload>",
				Flags:     sendFlags(),
				Action:    send,
			},
			{
				Name:   "receive",
				Usage:  "Receive the highest-priority message, blocking until one arrives",
				Flags:  receiveFlags(),
				Action: receive,
			},
			{
				Name:   "try",
				Usage:  "Receive a message if one is queued, without blocking",
				Flags:  tryFlags(),
				Action: try,
			},
			{
				Name:   "stat",
				Usage:  "Print the queue limits and depth",
				Action: stat,
			},
			{
				Name:   "destroy",
				Usage:  "Remove the queue from the OS namespace",
				Action: destroy,
			},
		},
	}
}
