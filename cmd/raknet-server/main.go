/*
Raknet-server runs a bare RakNet endpoint in server role, logging every
connection, login, message, and disconnection it sees.

Usage:

	raknet-server [-config path] [-listen host:port]

-config points at a yaml file in the shape of raknet.Config; flags override
whatever it sets.
*/
package main

import (
	"flag"
	"log"

	"github.com/goraknet/raknet"
	"github.com/goraknet/raknet/internal/cmdlog"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml raknet.Config file")
	listen := flag.String("listen", "", "bind address, overrides the config file")
	logDir := flag.String("log-dir", "log", "directory for latest.txt/last.txt log files")
	flag.Parse()

	cmdlog.Install(*logDir)

	cfg := raknet.DefaultConfig()
	if *configPath != "" {
		loaded, err := raknet.LoadConfigFile(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.BindAddress = *listen
	}

	sink := raknet.EventSink{
		OnConnect: func(p *raknet.Peer) {
			log.Print(p.Addr(), " connected")
		},
		OnLogin: func(p *raknet.Peer) {
			log.Print(p.Addr(), " logged in")
		},
		OnDisconnect: func(p *raknet.Peer, reason raknet.DisconnectReason) {
			log.Print(p.Addr(), " disconnected: ", reason)
		},
		OnMessage: func(p *raknet.Peer, ch raknet.Channel, payload []byte) {
			log.Printf("%s ch%d: %d bytes", p.Addr(), ch, len(payload))
		},
		OnHandlerError: func(addr raknet.Address, cause error) {
			log.Print(addr, ": ", cause)
		},
		OnPeerError: func(p *raknet.Peer, cause error) {
			log.Print(p.Addr(), ": ", cause)
		},
	}

	ep := raknet.NewEndpoint(cfg, raknet.RoleServer, sink)
	log.Print("listening on ", cfg.BindAddress)
	if err := ep.ListenAndServe(); err != nil {
		log.Fatal(err)
	}

	select {}
}
