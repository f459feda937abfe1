package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"namedq/internal/mq"
)

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openQueue creates or attaches to the queue named by the global flags.
func openQueue(c *cli.Context) (*mq.NamedQueue, error) {
	q, err := mq.Open(c.String("name"), c.Int("capacity"), c.Int("size"),
		mq.WithLogger(newLogger(c)),
		mq.WithPollInterval(c.Duration("poll-interval")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}
	return q, nil
}

// exitError maps queue errors onto process exit codes.
func exitError(err error) error {
	switch {
	case errors.Is(err, mq.ErrQueueRemoved):
		return cli.Exit(err.Error(), exitRemoved)
	case errors.Is(err, context.DeadlineExceeded):
		return cli.Exit("timed out", exitEmpty)
	default:
		return cli.Exit(err.Error(), 1)
	}
}

func withTimeout(c *cli.Context) (context.Context, context.CancelFunc) {
	if d := c.Duration("timeout"); d > 0 {
		return context.WithTimeout(c.Context, d)
	}
	return context.WithCancel(c.Context)
}

func send(c *cli.Context) error {
	var payload []byte
	switch c.NArg() {
	case 0:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		payload = data
	case 1:
		payload = []byte(c.Args().First())
	default:
		return cli.Exit("send takes at most one payload argument", 1)
	}

	q, err := openQueue(c)
	if err != nil {
		return exitError(err)
	}
	defer q.Close()

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := q.SendContext(ctx, payload, c.Uint("priority")); err != nil {
		return exitError(err)
	}
	return nil
}

func receive(c *cli.Context) error {
	q, err := openQueue(c)
	if err != nil {
		return exitError(err)
	}
	defer q.Close()

	ctx, cancel := withTimeout(c)
	defer cancel()

	msg, err := q.ReceiveContext(ctx)
	if err != nil {
		return exitError(err)
	}
	return printMessage(c, msg)
}

func try(c *cli.Context) error {
	q, err := openQueue(c)
	if err != nil {
		return exitError(err)
	}
	defer q.Close()

	msg, err := q.TryReceiveMessage()
	if err != nil {
		return exitError(err)
	}
	if msg == nil {
		return cli.Exit("", exitEmpty)
	}
	return printMessage(c, msg)
}

func printMessage(c *cli.Context, msg *mq.Message) error {
	w := c.App.Writer
	if c.Bool("with-priority") {
		if _, err := fmt.Fprintf(w, "%d\t", msg.Priority); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s\n", msg.Payload)
	return err
}

func stat(c *cli.Context) error {
	q, err := openQueue(c)
	if err != nil {
		return exitError(err)
	}
	defer q.Close()

	attr, err := q.Stat()
	if err != nil {
		return exitError(err)
	}
	_, err = fmt.Fprintf(c.App.Writer, "name=%s capacity=%d max_message_size=%d current=%d\n",
		q.Name(), attr.Capacity, attr.MaxMessageSize, attr.Current)
	return err
}

// destroy unlinks by name so a missing queue is not created first.
func destroy(c *cli.Context) error {
	err := mq.Remove(c.String("name"))
	if errors.Is(err, mq.ErrNotFound) {
		fmt.Fprintf(c.App.ErrWriter, "queue %q does not exist\n", c.String("name"))
		return nil
	}
	if err != nil {
		return exitError(err)
	}
	return nil
}
