// Package grpctransport configures the gRPC dial and server surface a
// production Transport would use. It mirrors the teacher's TransportConfig
// functional-options builder; the wire codec and service definition
// themselves are outside this module's scope, so NewConfig returns the dial
// and server options a caller wires into their own generated stub.
package grpctransport

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// Config collects the grpc.DialOptions and grpc.ServerOptions a Raft peer
// connection should use.
type Config struct {
	DialOptions   []grpc.DialOption
	ServerOptions []grpc.ServerOption
	DialTimeout   time.Duration
	Logger        *zap.Logger
	Debug         bool
}

// Verify checks the configuration is usable.
func (c *Config) Verify() error {
	if c.DialTimeout <= 0 {
		return fmt.Errorf("grpctransport: DialTimeout must be greater than 0")
	}
	return nil
}

var configTemplate = Config{
	DialTimeout: 5 * time.Second,
	ServerOptions: []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    10 * time.Second,
			Timeout: 5 * time.Second,
		}),
	},
	DialOptions: []grpc.DialOption{
		grpc.WithBlock(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	},
}

// ConfigOption customizes a Config produced by NewConfig.
type ConfigOption interface{ Transform(*Config) }

type withInsecure struct{}

func (withInsecure) Transform(c *Config) {
	c.DialOptions = append(c.DialOptions, grpc.WithInsecure())
}

// WithInsecure adds grpc.WithInsecure to the dial options. Callers that
// need transport security should use WithGRPCDialOption(grpc.WithTransportCredentials(...))
// instead of this option.
func WithInsecure() ConfigOption { return withInsecure{} }

type withGRPCDialOption struct{ opt grpc.DialOption }

func (w withGRPCDialOption) Transform(c *Config) { c.DialOptions = append(c.DialOptions, w.opt) }

// WithGRPCDialOption adds an arbitrary grpc.DialOption.
func WithGRPCDialOption(opt grpc.DialOption) ConfigOption { return withGRPCDialOption{opt: opt} }

type withGRPCServerOption struct{ opt grpc.ServerOption }

func (w withGRPCServerOption) Transform(c *Config) { c.ServerOptions = append(c.ServerOptions, w.opt) }

// WithGRPCServerOption adds an arbitrary grpc.ServerOption.
func WithGRPCServerOption(opt grpc.ServerOption) ConfigOption { return withGRPCServerOption{opt: opt} }

type withDialTimeout struct{ d time.Duration }

func (w withDialTimeout) Transform(c *Config) { c.DialTimeout = w.d }

// WithDialTimeout overrides the default dial timeout.
func WithDialTimeout(d time.Duration) ConfigOption { return withDialTimeout{d: d} }

type withLogger struct{ logger *zap.Logger }

func (w withLogger) Transform(c *Config) { c.Logger = w.logger }

// WithLogger attaches a zap.Logger for connection lifecycle events.
func WithLogger(logger *zap.Logger) ConfigOption { return withLogger{logger: logger} }

type withDebug struct{ debug bool }

func (w withDebug) Transform(c *Config) { c.Debug = w.debug }

// WithDebug enables debug-level connection logging.
func WithDebug(debug bool) ConfigOption { return withDebug{debug: debug} }

// NewConfig builds a Config starting from configTemplate and applying opts
// in order.
func NewConfig(opts ...ConfigOption) (*Config, error) {
	c := configTemplate
	c.DialOptions = append([]grpc.DialOption(nil), configTemplate.DialOptions...)
	c.ServerOptions = append([]grpc.ServerOption(nil), configTemplate.ServerOptions...)
	c.Logger = zap.NewNop()
	for _, opt := range opts {
		opt.Transform(&c)
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}
