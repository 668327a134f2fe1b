package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	wstransport "github.com/harunnryd/hearth/pkg/transports/websocket"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/chat", "chat endpoint")
	origin := flag.String("origin", "", "Origin header to send")
	flag.Parse()

	header := http.Header{}
	if *origin != "" {
		header.Set("Origin", *origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(*url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			fmt.Println("another client is already connected")
			os.Exit(1)
		}
		fmt.Println("dial error:", err)
		os.Exit(1)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg wstransport.Outbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case wstransport.TypeReady:
				fmt.Println("connected as", msg.ClientID)
			case wstransport.TypeReply:
				fmt.Println("Assistant > " + msg.Content)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if err := conn.WriteJSON(wstransport.Inbound{Type: wstransport.TypeUser, Content: line}); err != nil {
			fmt.Println("send error:", err)
			break
		}
		if line == "exit" || line == "quit" {
			break
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
}
