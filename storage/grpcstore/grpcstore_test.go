package grpcstore

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/depot/storage"
	"xdao.co/depot/storage/memory"
	"xdao.co/depot/storage/testkit"
)

// dialTestServer serves an in-memory backend over bufconn and returns
// a connected client.
func dialTestServer(t *testing.T) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterStoreServer(srv, &Server{
		Content: memory.New(),
		Aliases: memory.NewAliases(),
	})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	return NewClient(cc)
}

func TestGRPC_ContentConformance(t *testing.T) {
	testkit.RunContentConformance(t, func(t *testing.T) storage.ContentProvider {
		t.Helper()
		return dialTestServer(t)
	})
}

func TestGRPC_AliasConformance(t *testing.T) {
	testkit.RunAliasConformance(t, func(t *testing.T) storage.AliasProvider {
		t.Helper()
		return dialTestServer(t)
	})
}

func TestRegisterFrame_RoundTrip(t *testing.T) {
	key := []byte{0x00, 'k', 0xFF}
	id, err := storage.Identify(memory.New(), []byte("target"))
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	gotKey, gotID, err := decodeRegisterFrame(encodeRegisterFrame(key, id))
	if err != nil {
		t.Fatalf("decodeRegisterFrame: %v", err)
	}
	if string(gotKey) != string(key) || gotID != id {
		t.Fatalf("frame round trip mismatch: %x %v", gotKey, gotID)
	}

	if _, _, err := decodeRegisterFrame([]byte{0x05, 'a'}); err == nil {
		t.Fatalf("truncated frame must fail")
	}
}
