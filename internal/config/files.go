// this module defines the certificates used in the PKI setup for both clients and servers
package config

import (
	"os"
	"path/filepath"
)

// file paths containing the tls certs
var (
	CAFile               = configFile("ca.pem")
	ServerCertFile       = configFile("server.pem")
	ServerKeyFile        = configFile("server-key.pem")
	RootClientCertFile   = configFile("root-client.pem")
	RootClientKeyFile    = configFile("root-client-key.pem")
	NobodyClientCertFile = configFile("nobody-client.pem")
	NobodyClientKeyFile  = configFile("nobody-client-key.pem")

	// acl model to setup the acl enforcer and policy defining the rules
	ACLModelFile  = configFile("model.conf")
	ACLPolicyFile = configFile("policy.csv")

	// RaftDataDir holds the catalog, segmented log, and snapshots
	// (internal/raftstore, internal/raftadapter).
	RaftDataDir = configDir("raft")
)

func configFile(filename string) string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, filename)
	}
	// default to the user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(homeDir, ".rnacos", filename)
}

func configDir(name string) string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, name)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(homeDir, ".rnacos", name)
}
