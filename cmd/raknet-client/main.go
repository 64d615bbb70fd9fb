/*
Raknet-client dials a RakNet endpoint and relays stdin lines to it as
RELIABLE_ORDERED messages on channel 0, logging whatever it receives back.

Usage:

	raknet-client dial:port
*/
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/goraknet/raknet"
	"github.com/goraknet/raknet/internal/cmdlog"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: raknet-client dial:port")
		os.Exit(1)
	}

	cmdlog.Install("log")

	sink := raknet.EventSink{
		OnMessage: func(p *raknet.Peer, ch raknet.Channel, payload []byte) {
			fmt.Printf("ch%d: %s\n", ch, payload)
		},
		OnDisconnect: func(p *raknet.Peer, reason raknet.DisconnectReason) {
			log.Fatal("disconnected: ", reason)
		},
	}

	ep := raknet.NewEndpoint(raknet.DefaultConfig(), raknet.RoleClient, sink)
	peer, err := ep.Connect(context.Background(), os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	log.Print("connected to ", peer.Addr())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if _, err := peer.Send(raknet.ReliableOrdered, 0, scanner.Bytes()); err != nil {
			log.Print("send: ", err)
		}
	}
}
