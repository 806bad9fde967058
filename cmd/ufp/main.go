// Command ufp is a small console for a UniFi Protect controller: it can
// tail the live event stream, grab snapshots and list recent events.
//
// Configuration comes from UFP_* environment variables, optionally
// loaded from a .env file in the working directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/uilibs/uiprotect"
	"github.com/uilibs/uiprotect/data"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ufp:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the variables may come from the shell.
	_ = godotenv.Load()

	debug := flag.Bool("debug", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		return fmt.Errorf("missing command")
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	cfg, err := uiprotect.ConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.Logger = &log

	client, err := uiprotect.New(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd := flag.Arg(0); cmd {
	case "watch":
		return watch(ctx, client)
	case "snapshot":
		return snapshot(ctx, client, flag.Args()[1:])
	case "events":
		return listEvents(ctx, client, flag.Args()[1:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: ufp [-debug] <command> [args]

commands:
  watch                      tail the live update stream
  snapshot <camera-id|mac>   write a JPEG snapshot to stdout
  events [hours]             list events from the last N hours (default 1)
`)
}

func watch(ctx context.Context, client *uiprotect.Client) error {
	if err := client.Start(ctx); err != nil {
		return err
	}

	states, unsubStates := client.SubscribeState()
	defer unsubStates()
	unsub := client.Subscribe(func(msg uiprotect.Message) {
		if msg.Reset {
			fmt.Println("--- graph reset ---")
			return
		}
		line := fmt.Sprintf("%s %s %s", msg.Action, msg.Model, msg.ID)
		if !msg.Changed.Empty() {
			line += " [" + strings.Join(msg.Changed.Paths(), " ") + "]"
		}
		fmt.Println(line)
	})
	defer unsub()

	boot := client.Bootstrap()
	fmt.Printf("connected, %d devices, updateId=%s\n", boot.DeviceCount(), boot.UpdateID())

	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "session: %s\n", state)
			if state == uiprotect.StateClosed {
				return nil
			}
		}
	}
}

func snapshot(ctx context.Context, client *uiprotect.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("snapshot needs a camera id or MAC")
	}
	if err := client.Start(ctx); err != nil {
		return err
	}

	id := args[0]
	boot := client.Bootstrap()
	if _, ok := boot.GetCamera(id); !ok {
		if dev, ok := boot.GetDeviceByMAC(id); ok {
			if cam, ok := dev.(*data.Camera); ok {
				id = cam.ID
			}
		}
	}

	jpeg, err := client.GetCameraSnapshot(ctx, id, 0, 0)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(jpeg)
	return err
}

func listEvents(ctx context.Context, client *uiprotect.Client, args []string) error {
	hours := 1
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%d", &hours); err != nil || hours <= 0 {
			return fmt.Errorf("invalid hours %q", args[0])
		}
	}
	if err := client.Start(ctx); err != nil {
		return err
	}

	end := time.Now()
	events, err := client.GetEvents(ctx, uiprotect.EventQuery{
		Start: end.Add(-time.Duration(hours) * time.Hour),
		End:   end,
		Limit: 100,
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		start := ""
		if ev.Start != nil {
			start = ev.Start.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-24s  score=%-3d  camera=%s\n", start, ev.Type, ev.Score, ev.CameraID)
	}
	return nil
}
