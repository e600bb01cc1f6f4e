package transport

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/mohsanabbas/kflow/api/proto/v1"
)

type fakeRegistry struct {
	topics map[string]bool
}

func (f *fakeRegistry) PauseTopic(topicName string) error {
	if !f.topics[topicName] {
		return status.Error(codes.NotFound, "unknown topic")
	}
	return nil
}
func (f *fakeRegistry) ResumeTopic(topicName string) error { return f.PauseTopic(topicName) }
func (f *fakeRegistry) Topics() []string {
	out := make([]string, 0, len(f.topics))
	for t := range f.topics {
		out = append(out, t)
	}
	return out
}

func TestControlServer_Ping(t *testing.T) {
	s := &controlServer{}
	reply, err := s.Ping(context.Background(), &pb.PingRequest{})
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if reply.GetStatus() != "ok" {
		t.Fatalf("expected status ok, got %q", reply.GetStatus())
	}
}

func TestControlServer_PausePipeline_FoundInProducers(t *testing.T) {
	s := &controlServer{producers: &fakeRegistry{topics: map[string]bool{"orders": true}}}
	reply, err := s.PausePipeline(context.Background(), &pb.PauseRequest{Id: "orders"})
	if err != nil {
		t.Fatalf("PausePipeline: %v", err)
	}
	if !reply.GetOk() {
		t.Fatal("expected Ok=true")
	}
}

func TestControlServer_PausePipeline_FallsBackToConsumers(t *testing.T) {
	s := &controlServer{
		producers: &fakeRegistry{topics: map[string]bool{}},
		consumers: &fakeRegistry{topics: map[string]bool{"orders": true}},
	}
	reply, err := s.PausePipeline(context.Background(), &pb.PauseRequest{Id: "orders"})
	if err != nil {
		t.Fatalf("PausePipeline: %v", err)
	}
	if !reply.GetOk() {
		t.Fatal("expected Ok=true")
	}
}

func TestControlServer_PausePipeline_UnknownTopic(t *testing.T) {
	s := &controlServer{producers: &fakeRegistry{topics: map[string]bool{}}}
	if _, err := s.PausePipeline(context.Background(), &pb.PauseRequest{Id: "missing"}); err == nil {
		t.Fatal("expected error for unknown topic")
	}
}

func TestControlServer_PausePipeline_RequiresID(t *testing.T) {
	s := &controlServer{}
	if _, err := s.PausePipeline(context.Background(), &pb.PauseRequest{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestControlServer_DeployPipeline_Unimplemented(t *testing.T) {
	s := &controlServer{}
	if _, err := s.DeployPipeline(context.Background(), &pb.DeployRequest{Yaml: "x"}); status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}
