package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/easynet-cn/rnacos/internal/agent"
	"github.com/easynet-cn/rnacos/internal/config"
)

func main() {
	nodeName := flag.String("node-name", "", "unique id for this node, required")
	bindAddr := flag.String("bind-addr", "127.0.0.1:8401", "gossip bind address")
	rpcPort := flag.Int("rpc-port", 8400, "raft + cluster rpc port")
	httpAddr := flag.String("http-addr", ":8500", "client-facing http address")
	dataDir := flag.String("data-dir", "", "directory for raft data, defaults to a config-dir subdirectory")
	bootstrap := flag.Bool("bootstrap", false, "bootstrap a brand-new cluster with this node as its first member")
	var startJoinAddrs stringSlice
	flag.Var(&startJoinAddrs, "join", "address of an existing cluster member to join (repeatable)")
	flag.Parse()

	if *nodeName == "" {
		log.Fatal("-node-name is required")
	}

	dir := *dataDir
	if dir == "" {
		dir = config.RaftDataDir
	}

	cfg := agent.Config{
		DataDir:        dir,
		BindAddr:       *bindAddr,
		RPCPort:        *rpcPort,
		HTTPAddr:       *httpAddr,
		NodeName:       *nodeName,
		StartJoinAddrs: startJoinAddrs,
		Bootstrap:      *bootstrap,
		ACLModelFile:   config.ACLModelFile,
		ACLPolicyFile:  config.ACLPolicyFile,
	}

	a, err := agent.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	if err := a.Shutdown(); err != nil {
		log.Fatal(err)
	}
}

type stringSlice []string

func (s *stringSlice) String() string { return "" }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}
