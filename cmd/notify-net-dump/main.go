// notify-net-dump receives relayed notifications and prints them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"notithing/internal/relay"
	logx "notithing/pkg/logx"
)

func main() {
	var (
		asJSON  bool
		driver  string
		channel string
		debug   bool
	)
	flag.BoolVar(&asJSON, "j", false, "print raw json messages instead of a readable form")
	flag.StringVar(&driver, "driver", "zmq", "relay driver: zmq or redis")
	flag.StringVar(&channel, "channel", "", "redis channel (redis driver only)")
	flag.BoolVar(&debug, "debug", false, "verbose operation")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: notify-net-dump [flags] PORT|ADDRESS")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if debug {
		level = "debug"
	}
	log := logx.NewConsole(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	t, err := relay.Open(relay.Config{Driver: driver, SubBind: []string{bindAddr(flag.Arg(0))}, Channel: channel},
		relay.Options{Log: log}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "notify-net-dump:", err)
		os.Exit(1)
	}
	defer t.Close()

	log.Debug("entering message-dump loop")
	if err := dump(ctx, t, os.Stdout, asJSON); err != nil {
		fmt.Fprintln(os.Stderr, "notify-net-dump:", err)
	}
	log.Debug("finished")
}

// bindAddr turns a bare port number into a wildcard listen address.
func bindAddr(s string) string {
	if _, err := strconv.Atoi(s); err == nil {
		return "[::]:" + s
	}
	return s
}

func dump(ctx context.Context, t relay.Transport, w io.Writer, asJSON bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Ready():
		}
		for {
			msg, err := t.Recv()
			if err != nil {
				if errors.Is(err, relay.ErrClosed) {
					return nil
				}
				return err
			}
			if msg == nil {
				break
			}
			if asJSON {
				fmt.Fprintln(w, strings.TrimSpace(string(msg.Raw)))
				continue
			}
			fmt.Fprint(w, format(msg))
		}
	}
}

func format(msg *relay.Message) string {
	summary, body := msg.Note.PlainText()
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return fmt.Sprintf("Message:\n  Host: %s\n  Timestamp: %s\n  Summary: %s\n  Body:\n%s\n\n",
		msg.Hostname, msg.Time().Local().Format("2006-01-02 15:04:05"), summary, strings.Join(lines, "\n"))
}
