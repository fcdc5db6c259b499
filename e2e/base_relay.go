package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/presence"
	"chat-relay/registry"
	"chat-relay/repositories"
	"chat-relay/runtime"
)

var e2eSecret = []byte("e2e_relay_secret_key_2026!")

// BaseRelaySuite boots a full in-process relay on a throwaway badger
// directory: real registry, real router, real stores. Transports are
// replaced by recording sinks so scenarios can assert on exactly what
// each session would have received on the wire.
type BaseRelaySuite struct {
	suite.Suite
	Config Config

	db            *badger.DB
	Monitoring    *observability.Monitor
	Registry      *registry.Registry
	Router        *runtime.Router
	Lifecycle     *runtime.Lifecycle
	Rooms         *repositories.RoomStore
	Conversations *repositories.ConversationStore
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

func (s *BaseRelaySuite) SetupTest() {
	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).
		WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.db = db

	log := slog.Default()
	s.Monitoring = observability.NewMonitor()
	sessions := repositories.NewSessionRepository(db)
	s.Rooms = repositories.NewRoomStore(db)
	s.Conversations = repositories.NewConversationStore(db)
	verifier := auth.NewVerifier(e2eSecret)

	s.Registry = registry.NewRegistry(log, verifier, sessions, s.Monitoring)
	s.Router = runtime.NewRouter(log, s.Registry, s.Monitoring)
	tracker := presence.NewTracker(s.Registry)
	s.Lifecycle = runtime.NewLifecycle(log, s.Registry, s.Router, tracker,
		s.Conversations, s.Rooms)
}

func (s *BaseRelaySuite) TearDownTest() {
	if s.db != nil {
		s.Require().NoError(s.db.Close())
	}
}

// Step prints a colorized scenario step header in the test log
func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// ConnectUser issues a valid token for the user and drives the full
// go-online path with a fresh recording sink attached.
func (s *BaseRelaySuite) ConnectUser(ctx context.Context, userID, sessionID string) *RecordingSink {
	token, err := auth.GenerateToken(e2eSecret, userID, time.Hour)
	s.Require().NoError(err)

	sink := NewRecordingSink(s.Config, s.T().Logf)
	user := domain.User{ID: userID, Token: token}
	s.Require().NoError(s.Lifecycle.Connect(ctx, sessionID, user, sink))
	return sink
}

// RecordingSink captures every envelope a session would have received.
type RecordingSink struct {
	mu        sync.Mutex
	envelopes []event.Envelope
	cfg       Config
	logf      func(format string, args ...any)
}

func NewRecordingSink(cfg Config, logf func(format string, args ...any)) *RecordingSink {
	return &RecordingSink{cfg: cfg, logf: logf}
}

func (r *RecordingSink) Consume(ctx context.Context, e event.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, e)
	if r.cfg.DebugJSON {
		r.logf("EVENT %s PAYLOAD %s", e.Event, string(e.Payload))
	}
	return nil
}

// Received returns a snapshot of everything consumed so far, in order.
func (r *RecordingSink) Received() []event.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Envelope, len(r.envelopes))
	copy(out, r.envelopes)
	return out
}

// Names returns just the event tags, in delivery order.
func (r *RecordingSink) Names() []event.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]event.Name, 0, len(r.envelopes))
	for _, e := range r.envelopes {
		names = append(names, e.Event)
	}
	return names
}
