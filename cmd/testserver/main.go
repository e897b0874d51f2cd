// Command testserver runs a standalone crossword mock target, for pointing
// cmd/loadgen at during development without a real puzzle service.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port      Port to listen on (default: 8080)
//	-host      Host to bind to (default: localhost)
//	-delay-ms  Delay applied before every response, in milliseconds
//	-fail-rate Percentage of requests answered with 500 instead of a normal response
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"crossword-loadgen/testserver"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	delayMs := flag.Int("delay-ms", 0, "delay applied before every response, in milliseconds")
	failRate := flag.Int("fail-rate", 0, "percentage of requests answered with 500 instead of a normal response")
	flag.Parse()

	server := testserver.NewServerWithConfig(testserver.Config{DelayMs: *delayMs, FailRate: *failRate})
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("crossword-loadgen test target")
	fmt.Println("==============================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /date-picker         - Returns a base64-JSON loadToken envelope")
	fmt.Println("  POST /postPickerStatus    - Acks a picker status update")
	fmt.Println("  GET  /crossword           - Returns a base64-JSON playId envelope")
	fmt.Println("  POST /api/v1/plays        - Records a play submission")
	fmt.Println("  GET  /api/v1/puzzles      - Echoes requested puzzle identifiers")
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		os.Exit(0)
	}()

	log.Fatal(http.ListenAndServe(addr, server.Handler()))
}
