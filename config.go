package raft

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quorumkv/raft/raftpb"
	"github.com/quorumkv/raft/raftstore"
	"github.com/quorumkv/raft/rafttransport"
	"github.com/quorumkv/raft/statemachine"
)

// Config configures a Group. It is built with NewConfig and a chain of
// ConfigOptions, the same functional-options shape the teacher's
// ProtocolConfig/TransportConfig use.
type Config struct {
	Self raftpb.Endpoint

	LeaderElectionTimeoutMinMillis int
	LeaderElectionTimeoutMaxMillis int
	LeaderHeartbeatPeriodSeconds   float64
	LeaderHeartbeatTimeoutSeconds  float64

	CommitCountToTakeSnapshot   int
	MaxUncommittedLogEntryCount int
	MaxPendingLogEntryCount     int
	AppendEntriesRequestBatchSize int

	EnableNewTermOperation bool

	RaftNodeReportPublishPeriodSeconds float64

	TransferSnapshotsFromFollowersEnabled bool

	Clock Clock
	Rand  RandSource

	Logger *zap.Logger
	Debug  bool

	Store        raftstore.Store
	StateMachine statemachine.StateMachine
	Transport    rafttransport.Transport
}

// Verify checks that c is internally consistent.
func (c *Config) Verify() error {
	if c.Self.ID == "" {
		return fmt.Errorf("raft: Self.ID must be set")
	}
	if c.LeaderElectionTimeoutMinMillis <= 0 {
		return fmt.Errorf("raft: LeaderElectionTimeoutMinMillis must be greater than 0")
	}
	if c.LeaderElectionTimeoutMaxMillis < c.LeaderElectionTimeoutMinMillis {
		return fmt.Errorf("raft: LeaderElectionTimeoutMaxMillis cannot be less than the min")
	}
	if c.LeaderHeartbeatPeriodSeconds <= 0 {
		return fmt.Errorf("raft: LeaderHeartbeatPeriodSeconds must be greater than 0")
	}
	if c.LeaderHeartbeatTimeoutSeconds <= c.LeaderHeartbeatPeriodSeconds {
		return fmt.Errorf("raft: LeaderHeartbeatTimeoutSeconds must exceed LeaderHeartbeatPeriodSeconds")
	}
	if c.CommitCountToTakeSnapshot <= 0 {
		return fmt.Errorf("raft: CommitCountToTakeSnapshot must be greater than 0")
	}
	if c.MaxUncommittedLogEntryCount <= 0 {
		return fmt.Errorf("raft: MaxUncommittedLogEntryCount must be greater than 0")
	}
	if c.MaxPendingLogEntryCount <= 0 {
		return fmt.Errorf("raft: MaxPendingLogEntryCount must be greater than 0")
	}
	if c.AppendEntriesRequestBatchSize <= 0 {
		return fmt.Errorf("raft: AppendEntriesRequestBatchSize must be greater than 0")
	}
	if c.Store == nil {
		return fmt.Errorf("raft: Store must be set")
	}
	if c.StateMachine == nil {
		return fmt.Errorf("raft: StateMachine must be set")
	}
	if c.Transport == nil {
		return fmt.Errorf("raft: Transport must be set")
	}
	return nil
}

// configTemplate is the default, partially filled Config every NewConfig
// call starts from, mirroring the teacher's protocolConfigTemplate.
var configTemplate = Config{
	LeaderElectionTimeoutMinMillis: 1500,
	LeaderElectionTimeoutMaxMillis: 3000,
	LeaderHeartbeatPeriodSeconds:   0.5,
	LeaderHeartbeatTimeoutSeconds:  3,
	CommitCountToTakeSnapshot:      10000,
	MaxUncommittedLogEntryCount:    10000,
	MaxPendingLogEntryCount:        1000,
	AppendEntriesRequestBatchSize:  1000,
	EnableNewTermOperation:         false,
	RaftNodeReportPublishPeriodSeconds: 10,
	TransferSnapshotsFromFollowersEnabled: false,
}

// ConfigOption configures a Config further, applied in order after the
// template and Self/Store/StateMachine/Transport are set.
type ConfigOption interface{ Transform(*Config) }

type withElectionTimeoutRange struct{ min, max int }

func (w withElectionTimeoutRange) Transform(c *Config) {
	c.LeaderElectionTimeoutMinMillis = w.min
	c.LeaderElectionTimeoutMaxMillis = w.max
}

// WithLeaderElectionTimeoutRange sets the randomized election timeout
// range, in milliseconds.
func WithLeaderElectionTimeoutRange(minMillis, maxMillis int) ConfigOption {
	return withElectionTimeoutRange{min: minMillis, max: maxMillis}
}

type withHeartbeatPeriod struct{ seconds float64 }

func (w withHeartbeatPeriod) Transform(c *Config) { c.LeaderHeartbeatPeriodSeconds = w.seconds }

// WithLeaderHeartbeatPeriodSeconds sets the interval between empty appends
// while the leader is otherwise idle.
func WithLeaderHeartbeatPeriodSeconds(seconds float64) ConfigOption {
	return withHeartbeatPeriod{seconds: seconds}
}

type withHeartbeatTimeout struct{ seconds float64 }

func (w withHeartbeatTimeout) Transform(c *Config) { c.LeaderHeartbeatTimeoutSeconds = w.seconds }

// WithLeaderHeartbeatTimeoutSeconds sets how long a QueryEventual call waits
// for commitIndex to reach its minCommitIndex. A follower does not use it to
// detect a lost leader; that is driven by the election timeout range.
func WithLeaderHeartbeatTimeoutSeconds(seconds float64) ConfigOption {
	return withHeartbeatTimeout{seconds: seconds}
}

type withCommitCountToTakeSnapshot struct{ n int }

func (w withCommitCountToTakeSnapshot) Transform(c *Config) { c.CommitCountToTakeSnapshot = w.n }

// WithCommitCountToTakeSnapshot sets how many committed entries elapse
// between automatic snapshots.
func WithCommitCountToTakeSnapshot(n int) ConfigOption { return withCommitCountToTakeSnapshot{n: n} }

type withMaxUncommittedLogEntryCount struct{ n int }

func (w withMaxUncommittedLogEntryCount) Transform(c *Config) { c.MaxUncommittedLogEntryCount = w.n }

// WithMaxUncommittedLogEntryCount bounds the in-flight log tail.
func WithMaxUncommittedLogEntryCount(n int) ConfigOption {
	return withMaxUncommittedLogEntryCount{n: n}
}

type withMaxPendingLogEntryCount struct{ n int }

func (w withMaxPendingLogEntryCount) Transform(c *Config) { c.MaxPendingLogEntryCount = w.n }

// WithMaxPendingLogEntryCount bounds how many client futures may await
// commit at once.
func WithMaxPendingLogEntryCount(n int) ConfigOption { return withMaxPendingLogEntryCount{n: n} }

type withAppendEntriesRequestBatchSize struct{ n int }

func (w withAppendEntriesRequestBatchSize) Transform(c *Config) {
	c.AppendEntriesRequestBatchSize = w.n
}

// WithAppendEntriesRequestBatchSize caps how many entries a single
// AppendEntriesRequest carries.
func WithAppendEntriesRequestBatchSize(n int) ConfigOption {
	return withAppendEntriesRequestBatchSize{n: n}
}

type withEnableNewTermOperation struct{}

func (withEnableNewTermOperation) Transform(c *Config) { c.EnableNewTermOperation = true }

// WithEnableNewTermOperation makes a freshly elected leader append an
// EntryNewTerm entry instead of EntryNoop.
func WithEnableNewTermOperation() ConfigOption { return withEnableNewTermOperation{} }

type withReportPublishPeriod struct{ seconds float64 }

func (w withReportPublishPeriod) Transform(c *Config) {
	c.RaftNodeReportPublishPeriodSeconds = w.seconds
}

// WithRaftNodeReportPublishPeriodSeconds sets
// Config.RaftNodeReportPublishPeriodSeconds. The value is only stored: Group
// does not publish Reports on its own; a Report is obtained by calling
// Group.Report.
func WithRaftNodeReportPublishPeriodSeconds(seconds float64) ConfigOption {
	return withReportPublishPeriod{seconds: seconds}
}

type withTransferSnapshotsFromFollowers struct{}

func (withTransferSnapshotsFromFollowers) Transform(c *Config) {
	c.TransferSnapshotsFromFollowersEnabled = true
}

// WithTransferSnapshotsFromFollowersEnabled allows a lagging follower to be
// pointed at a caught-up peer follower for its snapshot chunks instead of
// always pulling from the leader.
func WithTransferSnapshotsFromFollowersEnabled() ConfigOption {
	return withTransferSnapshotsFromFollowers{}
}

type withClock struct{ clock Clock }

func (w withClock) Transform(c *Config) { c.Clock = w.clock }

// WithClock injects a Clock, for deterministic tests.
func WithClock(clock Clock) ConfigOption { return withClock{clock: clock} }

type withRand struct{ rand RandSource }

func (w withRand) Transform(c *Config) { c.Rand = w.rand }

// WithRand injects a RandSource, for deterministic tests.
func WithRand(rand RandSource) ConfigOption { return withRand{rand: rand} }

type withLogger struct{ logger *zap.Logger }

func (w withLogger) Transform(c *Config) { c.Logger = w.logger }

// WithLogger attaches a zap.Logger to the node.
func WithLogger(logger *zap.Logger) ConfigOption { return withLogger{logger: logger} }

type withDebug struct{ debug bool }

func (w withDebug) Transform(c *Config) { c.Debug = w.debug }

// WithDebug enables debug-level protocol logging.
func WithDebug(debug bool) ConfigOption { return withDebug{debug: debug} }

// NewConfig builds a Config for self, wired to store/stateMachine/transport,
// starting from configTemplate and applying opts in order.
func NewConfig(
	self raftpb.Endpoint,
	store raftstore.Store,
	sm statemachine.StateMachine,
	transport rafttransport.Transport,
	opts ...ConfigOption,
) (*Config, error) {
	c := configTemplate
	c.Self = self
	c.Store = store
	c.StateMachine = sm
	c.Transport = transport
	c.Clock = SystemClock
	c.Rand = SystemRandSource
	c.Logger = zap.NewNop()
	for _, opt := range opts {
		opt.Transform(&c)
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) electionTicksRange() (int, int) {
	tickMillis := 100.0
	min := int(float64(c.LeaderElectionTimeoutMinMillis) / tickMillis)
	max := int(float64(c.LeaderElectionTimeoutMaxMillis) / tickMillis)
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return min, max
}

func (c *Config) heartbeatTicks() int {
	tickPeriod := 100 * time.Millisecond
	ticks := int(time.Duration(c.LeaderHeartbeatPeriodSeconds*1000) * time.Millisecond / tickPeriod)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}
