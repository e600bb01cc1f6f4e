package transport

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/mohsanabbas/kflow/api/proto/v1"
)

// Dial connects to a Control server listening on localhost:port. The
// control plane is meant for same-host/trusted-network operators use
// (pause/resume, liveness), so plaintext is acceptable here.
func Dial(port int) (pb.ControlClient, error) {
	cc, err := grpc.NewClient(fmt.Sprintf("localhost:%d", port), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return pb.NewControlClient(cc), nil
}
