// notify-net sends one notification to remote notification-thing daemons
// over the relay transport.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"notithing/internal/note"
	"notithing/internal/relay"
	logx "notithing/pkg/logx"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	dst        listFlag
	driver     string
	channel    string
	hostname   string
	stdin      bool
	wait       time.Duration
	urgency    string
	expire     float64
	appName    string
	icons      listFlag
	categories listFlag
	debug      bool
}

func main() {
	var o options
	host, _ := os.Hostname()
	flag.Var(&o.dst, "d", "peer address (ip:port or full url), repeatable")
	flag.StringVar(&o.driver, "driver", "zmq", "relay driver: zmq or redis")
	flag.StringVar(&o.channel, "channel", "", "redis channel (redis driver only)")
	flag.StringVar(&o.hostname, "n", host, "source name to use for the message")
	flag.BoolVar(&o.stdin, "s", false, "read message body from stdin")
	flag.DurationVar(&o.wait, "w", 500*time.Millisecond, "time to wait for connections and for unsent messages to linger")
	flag.StringVar(&o.urgency, "u", "", "urgency: low/normal/critical or 0-2")
	flag.Float64Var(&o.expire, "t", 0, "expire the notification after this many seconds")
	flag.StringVar(&o.appName, "a", "notify-net", "app name")
	flag.Var(&o.icons, "i", "icon name or path, repeatable (fallbacks)")
	flag.Var(&o.categories, "c", "category hint, repeatable")
	flag.BoolVar(&o.debug, "debug", false, "verbose operation")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: notify-net -d ip:port [flags] SUMMARY [BODY]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(o, flag.Args(), os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, "notify-net:", err)
		os.Exit(1)
	}
}

func buildNote(o options, args []string, stdin io.Reader) (*note.Notification, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, errors.New("expected SUMMARY [BODY]")
	}
	summary, body := args[0], ""
	if len(args) == 2 {
		body = args[1]
	}
	if o.stdin {
		if body != "" {
			return nil, errors.New("message body must be passed either as an argument or on stdin, not both")
		}
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		body = string(b)
	}

	n := note.New(summary, body, time.Now())
	n.AppName = o.appName
	n.Icon = strings.Join(o.icons, ",")
	if o.expire > 0 {
		n.Timeout = int32(o.expire * 1000)
	}
	if o.urgency != "" {
		u, err := note.ParseUrgency(o.urgency)
		if err != nil {
			return nil, err
		}
		n.Hints["urgency"] = byte(u)
	}
	if len(o.categories) > 0 {
		n.Hints["category"] = strings.Join(o.categories, ",")
	}
	return n, nil
}

func run(o options, args []string, stdin io.Reader) error {
	if len(o.dst) == 0 {
		return errors.New("at least one -d destination is required")
	}
	n, err := buildNote(o, args, stdin)
	if err != nil {
		return err
	}

	level := "warn"
	if o.debug {
		level = "debug"
	}
	log := logx.NewConsole(level)

	t, err := relay.Open(relay.Config{Driver: o.driver, PubConnect: o.dst, Channel: o.channel},
		relay.Options{Hostname: o.hostname, Log: log}, nil)
	if err != nil {
		return err
	}
	log.Debug("connecting to peers", logx.Int("count", len(o.dst)))
	time.Sleep(o.wait)

	log.Debug("dispatching notification", logx.String("summary", n.Summary))
	if err := t.Send(n); err != nil {
		_ = t.Close()
		return err
	}
	time.Sleep(o.wait)
	return t.Close()
}
