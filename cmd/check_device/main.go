package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/isapi"
)

// Operator one-off: probe a single device and print what discovery sees,
// without touching the daemon config.
func main() {
	host := flag.String("host", "", "device base url, e.g. https://192.168.1.64 (required)")
	user := flag.String("user", "admin", "username")
	pass := flag.String("pass", "", "password (required)")
	insecure := flag.Bool("insecure", true, "skip TLS verification")
	verbose := flag.Bool("v", false, "log every ISAPI request")
	flag.Parse()

	if *host == "" || *pass == "" {
		fmt.Fprintln(os.Stderr, "Usage: check_device --host <url> --pass <password> [--user admin]")
		os.Exit(2)
	}

	log := zerolog.Nop()
	if *verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	opts := []isapi.Option{isapi.WithLogger(log)}
	if *insecure {
		opts = append(opts, isapi.WithInsecureTLS())
	}
	client := isapi.New(*host, *user, *pass, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := client.GetHardwareInfo(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "discovery failed: %v\n", err)
		os.Exit(1)
	}

	info := client.DeviceInfo
	fmt.Printf("%s %s (%s)\n", info.Manufacturer, info.Model, info.DeviceType)
	fmt.Printf("  serial:    %s\n", info.SerialNo)
	fmt.Printf("  firmware:  %s\n", info.Firmware)
	fmt.Printf("  mac:       %s\n", info.MacAddress)
	fmt.Printf("  nvr:       %v\n", info.IsNVR)
	fmt.Printf("  rtsp port: %d\n", client.Protocols.RtspPort)

	fmt.Printf("cameras (%d):\n", len(client.Cameras))
	for _, cam := range client.Cameras {
		fmt.Printf("  [%d] %s %s (%s, input port %d, %d streams)\n",
			cam.ID, cam.Name, cam.Model, cam.Connection, cam.InputPort, len(cam.Streams))
	}

	fmt.Printf("events (%d):\n", len(client.SupportedEvents))
	for _, ev := range client.SupportedEvents {
		state := ""
		if enabled, err := client.GetEventEnabledState(ctx, ev); err == nil {
			if enabled {
				state = " [enabled]"
			} else {
				state = " [disabled]"
			}
		}
		fmt.Printf("  %s%s\n", ev.UniqueID, state)
	}

	if len(client.Storage) > 0 {
		fmt.Printf("storage (%d):\n", len(client.Storage))
		for _, s := range client.Storage {
			fmt.Printf("  [%d] %s %s %s (%d MB free of %d MB)\n",
				s.ID, s.Name, s.Type, s.Status, s.Freespace, s.Capacity)
		}
	}
}
