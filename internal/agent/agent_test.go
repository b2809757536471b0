package agent_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"

	"github.com/easynet-cn/rnacos/internal/agent"
	"github.com/easynet-cn/rnacos/internal/collab"
	"github.com/easynet-cn/rnacos/internal/config"
)

func TestAgent(t *testing.T) {
	serverTLSConfig, err := config.SetupTLSConfig(config.TLSConfig{
		CertFile:      config.ServerCertFile,
		KeyFile:       config.ServerKeyFile,
		CAFile:        config.CAFile,
		Server:        true,
		ServerAddress: "127.0.0.1",
	})
	require.NoError(t, err)

	peerTLSConfig, err := config.SetupTLSConfig(config.TLSConfig{
		CertFile:      config.RootClientCertFile,
		KeyFile:       config.RootClientKeyFile,
		CAFile:        config.CAFile,
		Server:        false,
		ServerAddress: "127.0.0.1",
	})
	require.NoError(t, err)

	var agents []*agent.Agent
	var httpAddrs []string
	for i := range 3 {
		ports := dynaport.Get(3)
		bindAddr := fmt.Sprintf("127.0.0.1:%d", ports[0])
		rpcPort := ports[1]
		httpAddr := fmt.Sprintf("127.0.0.1:%d", ports[2])
		httpAddrs = append(httpAddrs, httpAddr)

		dataDir, err := os.MkdirTemp("", "agent-test-raft")
		require.NoError(t, err)

		var startJoinAddrs []string
		if i != 0 {
			startJoinAddrs = append(startJoinAddrs, agents[0].Config.BindAddr)
		}

		a, err := agent.New(agent.Config{
			NodeName:        fmt.Sprint(i),
			StartJoinAddrs:  startJoinAddrs,
			BindAddr:        bindAddr,
			RPCPort:         rpcPort,
			HTTPAddr:        httpAddr,
			DataDir:         dataDir,
			Bootstrap:       i == 0,
			ACLModelFile:    config.ACLModelFile,
			ACLPolicyFile:   config.ACLPolicyFile,
			ServerTLSConfig: serverTLSConfig,
			PeerTLSConfig:   peerTLSConfig,
		})
		require.NoError(t, err)
		agents = append(agents, a)
	}

	defer func() {
		for _, a := range agents {
			require.NoError(t, a.Shutdown())
			require.NoError(t, os.RemoveAll(a.Config.DataDir))
		}
	}()

	// give raft time to elect a leader and gossip to converge
	time.Sleep(3 * time.Second)

	instance := collab.ServiceInstance{
		ServiceName: "checkout",
		InstanceID:  "inst-1",
		Address:     "10.0.0.1:9000",
		Healthy:     true,
	}
	registerBody, err := json.Marshal(map[string]any{"instance": instance})
	require.NoError(t, err)

	resp, err := http.Post("http://"+httpAddrs[0]+"/v1/instances", "application/json", bytes.NewReader(registerBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// wait for the write to replicate to the follower
	time.Sleep(3 * time.Second)

	follower, err := http.Get("http://" + httpAddrs[1] + "/v1/instances/checkout")
	require.NoError(t, err)
	defer follower.Body.Close()

	var lookup struct {
		Instances []collab.ServiceInstance `json:"instances"`
	}
	require.NoError(t, json.NewDecoder(follower.Body).Decode(&lookup))
	require.Len(t, lookup.Instances, 1)
	require.Equal(t, instance.InstanceID, lookup.Instances[0].InstanceID)
}
