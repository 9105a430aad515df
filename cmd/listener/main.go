// Command main is a terminal listener: it connects to a node's websocket feed
// and prints the station's change events. Useful for watching an election or
// a voting round from outside the cluster.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8480", "node address")
	token := flag.String("token", "", "optional JWT for an identified session")
	flag.Parse()

	url := fmt.Sprintf("ws://%s/api/ws/radio", *addr)
	if *token != "" {
		url += "?token=" + *token
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", url)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}

			// Pretty-print known event shapes, fall back to raw payload.
			var event map[string]interface{}
			if err := json.Unmarshal(message, &event); err != nil {
				fmt.Printf("  %s\n", message)
				continue
			}
			if kind, ok := event["kind"].(string); ok {
				fmt.Printf("[%s] %s\n", kind, message)
			} else {
				fmt.Printf("  %s\n", message)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
	case <-interrupt:
		log.Println("Disconnecting...")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		<-done
	}
}
