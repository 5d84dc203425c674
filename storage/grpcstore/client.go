package grpcstore

import (
	"bytes"
	"context"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Client implements storage.ContentProvider and storage.AliasProvider
// over the Store gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client StoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var (
	_ storage.ContentProvider = (*Client)(nil)
	_ storage.AliasProvider   = (*Client)(nil)
)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewStoreClient(cc)}, nil
}

// NewClient wraps an established connection. Used by tests dialing
// over bufconn.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewStoreClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := storage.InlineReader(id); ok {
		return r, nil
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.Bytes(id.AppendWire(nil)))
	if err != nil {
		return nil, mapRPC(err, storage.ErrNotFound)
	}
	data := reply.GetValue()
	if !id.Matches(data) {
		return nil, storage.ErrCorrupted
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *Client) GetWriter(ctx context.Context, id ident.Identifier) (storage.ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}
	if _, err := c.Stat(ctx, id); err == nil {
		return nil, nil
	} else if !storage.IsNotFound(err) {
		return nil, err
	}

	return storage.NewUploader(id, func(ctx context.Context, data []byte) error {
		ctx, cancel := c.ctx(ctx)
		defer cancel()

		// A racing writer landing first is answered with stored=false;
		// the store has converged to the bytes we verified, so the
		// reply value is informational only.
		_, err := c.client.Put(ctx, wrapperspb.Bytes(encodePutFrame(id, data)))
		return mapRPC(err, storage.ErrNotFound)
	}), nil
}

func (c *Client) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	if id.IsInline() {
		return int64(id.Size()), nil
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Stat(ctx, wrapperspb.Bytes(id.AppendWire(nil)))
	if err != nil {
		return 0, mapRPC(err, storage.ErrNotFound)
	}
	return reply.GetValue(), nil
}

func (c *Client) Delete(ctx context.Context, id ident.Identifier) error {
	if id.IsInline() {
		return nil
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err := c.client.Delete(ctx, wrapperspb.Bytes(id.AppendWire(nil)))
	return mapRPC(err, storage.ErrNotFound)
}

func (c *Client) Resolve(ctx context.Context, key []byte) (ident.Identifier, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Resolve(ctx, wrapperspb.Bytes(key))
	if err != nil {
		return ident.Identifier{}, mapRPC(err, storage.ErrAliasNotFound)
	}
	return decodeIdentifier(reply.GetValue())
}

func (c *Client) Register(ctx context.Context, key []byte, id ident.Identifier) (ident.Identifier, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Register(ctx, wrapperspb.Bytes(encodeRegisterFrame(key, id)))
	if err != nil {
		return ident.Identifier{}, mapRPC(err, storage.ErrAliasNotFound)
	}
	return decodeIdentifier(reply.GetValue())
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
