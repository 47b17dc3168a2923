package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		log.Printf("chat_client: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:8189", "chat server TCP address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", *addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", *addr, err)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Authenticate with /auth <login> <password> or register with /reg <username> <login> <password>.")
	fmt.Println("Type messages and press Enter to send. /exit or Ctrl+C to leave.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		readLoop(conn)
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	writeLoop(ctx, conn, done)

	<-done
	return nil
}

// readLoop prints server lines until the connection closes.
func readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("read error: %v", err)
	}
	fmt.Println("disconnected")
}

func writeLoop(ctx context.Context, conn net.Conn, done <-chan struct{}) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
