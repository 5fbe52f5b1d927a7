package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/kadir014/tcpnet"
)

// A self-contained echo demo: a server that bounces every packet back,
// and a client that sends a message each second and reports the measured
// heartbeat latency.
func main() {
	// Keep library logs out of the demo output.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	server := tcpnet.NewServer("127.0.0.1:0")

	server.OnConnect(func(conn *tcpnet.Conn) {
		pterm.Info.Println(fmt.Sprintf("client #%d connected from %s", conn.ID(), conn.RemoteAddr()))
	})
	server.OnDisconnect(func(conn *tcpnet.Conn) {
		pterm.Info.Println(fmt.Sprintf("client #%d disconnected", conn.ID()))
	})
	server.OnPacket(func(packet *tcpnet.Packet, conn *tcpnet.Conn) error {
		return conn.Write(packet.Payload)
	})

	if err := server.Start(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	pterm.Success.Println(fmt.Sprintf("echo server listening on %s", server.Addr()))

	client := tcpnet.NewClient(server.Addr().String())
	client.OnPacket(func(packet *tcpnet.Packet) error {
		pterm.Info.Println(fmt.Sprintf("echo: %q (latency %s)", packet.Payload, client.Latency()))
		return nil
	})

	if err := client.Connect(context.Background()); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 1; ; i++ {
		select {
		case <-ticker.C:
			msg := fmt.Sprintf("hello %d", i)
			if err := client.Write([]byte(msg)); err != nil {
				pterm.Error.Println(err)
				return
			}
		case <-sigCh:
			pterm.Println()
			pterm.Info.Println("shutting down")
			client.Disconnect()
			if err := server.Stop(); err != nil {
				pterm.Error.Println(err)
			}
			return
		}
	}
}
