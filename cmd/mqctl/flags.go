package main

import (
	"github.com/urfave/cli/v2"

	"namedq/internal/mq"
)

// queueFlags identify the queue and the limits used if it has to be created.
func queueFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Aliases:  []string{"n"},
			Usage:    "The OS-wide name of the queue",
			EnvVars:  []string{"NAMEDQ_NAME"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    "capacity",
			Aliases: []string{"c"},
			Usage:   "Maximum number of queued messages, used only when the queue is created",
			EnvVars: []string{"NAMEDQ_CAPACITY"},
			Value:   10,
		},
		&cli.IntFlag{
			Name:    "size",
			Aliases: []string{"s"},
			Usage:   "Maximum message size in bytes, used only when the queue is created",
			EnvVars: []string{"NAMEDQ_MAX_MESSAGE_SIZE"},
			Value:   8192,
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "How often a blocked operation checks that the queue still exists",
			Value: mq.DefaultPollInterval,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

func sendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{
			Name:    "priority",
			Aliases: []string{"p"},
			Usage:   "Message priority, higher is delivered first",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Give up if the queue stays full this long (0 waits forever)",
		},
	}
}

func receiveFlags() []cli.Flag {
	return append(tryFlags(),
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Give up if no message arrives this long (0 waits forever)",
		},
	)
}

func tryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "with-priority",
			Usage: "Prefix the payload with its priority and a tab",
		},
	}
}
