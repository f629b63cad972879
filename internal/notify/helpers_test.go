package notify

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// setupTestNATS starts an embedded JetStream-enabled NATS server
func setupTestNATS(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

type payload struct {
	ID   int64  `json:"id"`
	Host string `json:"host"`
}
