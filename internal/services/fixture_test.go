package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/database"
	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/validation"
)

type published struct {
	SessionID uint
	Type      string
	Data      interface{}
}

// recorder is a Broadcaster that keeps everything it is given.
type recorder struct {
	mu      sync.Mutex
	events  []published
	dropped []uint
}

func (r *recorder) Publish(sessionID uint, eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{SessionID: sessionID, Type: eventType, Data: data})
}

func (r *recorder) Drop(sessionID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, sessionID)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.dropped = nil
}

type fixture struct {
	db           *gorm.DB
	bus          *recorder
	clock        *fakeClock
	orgs         *OrganizationService
	sessions     *SessionService
	timers       *BlockTimers
	control      *ControlService
	participants *ParticipantService
	orgSeq       int
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	bus := &recorder{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	orgs := NewOrganizationService(db)
	locks := NewSessionLocks()
	sessions := NewSessionService(db, orgs, validation.New(), locks)
	timers := NewBlockTimers()
	control := NewControlService(db, sessions, NewScoringService(), bus, timers)
	control.now = clock.Now
	participants := NewParticipantService(db, bus, locks)
	participants.now = clock.Now
	t.Cleanup(timers.Stop)

	return &fixture{
		db:           db,
		bus:          bus,
		clock:        clock,
		orgs:         orgs,
		sessions:     sessions,
		timers:       timers,
		control:      control,
		participants: participants,
	}
}

func (f *fixture) user(t *testing.T, email string) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{Email: email, Name: email, PasswordHash: string(hash)}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) org(t *testing.T, owner models.User) models.Organization {
	t.Helper()
	f.orgSeq++
	org, err := f.orgs.CreateOrganization(owner.ID, fmt.Sprintf("Org %d", f.orgSeq), "")
	require.NoError(t, err)
	return *org
}

func choice(correct ...int) BlockInput {
	content := `{"options":["a","b","c"],"correct":[` + joinInts(correct) + `]}`
	return BlockInput{PluginType: models.PluginMultipleChoice, Title: "Pick one", Content: datatypes.JSON(content)}
}

func poll() BlockInput {
	return BlockInput{PluginType: models.PluginPoll, Title: "Vote", Content: datatypes.JSON(`{"options":["x","y"]}`)}
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

// liveSession creates a session with the given blocks and starts it, leaving
// it in waiting.
func (f *fixture) liveSession(t *testing.T, owner models.User, in SessionInput, blocks ...BlockInput) (*SessionDetail, []models.Block) {
	t.Helper()
	s := f.draftSession(t, owner, in, blocks...)
	_, err := f.control.StartSession(s.ID, owner.ID, nil)
	require.NoError(t, err)
	return s, f.blocks(t, s.ID)
}

func (f *fixture) draftSession(t *testing.T, owner models.User, in SessionInput, blocks ...BlockInput) *SessionDetail {
	t.Helper()
	org := f.org(t, owner)
	if in.Name == "" {
		in.Name = "Live"
	}
	s, err := f.sessions.CreateSession(org.ID, owner.ID, in)
	require.NoError(t, err)
	for _, b := range blocks {
		_, err := f.sessions.AddBlock(s.ID, owner.ID, b)
		require.NoError(t, err)
	}
	return s
}

func (f *fixture) blocks(t *testing.T, sessionID uint) []models.Block {
	t.Helper()
	var blocks []models.Block
	require.NoError(t, f.db.Where("session_id = ?", sessionID).Order("position ASC").Find(&blocks).Error)
	return blocks
}

func (f *fixture) status(t *testing.T, blockID uint) lifecycle.BlockStatus {
	t.Helper()
	var b models.Block
	require.NoError(t, f.db.First(&b, blockID).Error)
	return b.Status
}

func (f *fixture) join(t *testing.T, code, name string) *models.Participant {
	t.Helper()
	res, err := f.participants.Join(code, "", name, "")
	require.NoError(t, err)
	return &res.Participant
}

func intPtr(v int) *int { return &v }

// afterQuery runs fn once, right after the next query against table returns
// and before the caller sees the result.
func (f *fixture) afterQuery(t *testing.T, table string, fn func()) {
	t.Helper()
	var fired atomic.Bool
	name := "test:after_query_" + table
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register(name, func(db *gorm.DB) {
		if db.Statement.Table == table && fired.CompareAndSwap(false, true) {
			fn()
		}
	}))
	t.Cleanup(func() { f.db.Callback().Query().Remove(name) })
}

// failQuery makes the next query against table fail with errQueryFailed.
func (f *fixture) failQuery(t *testing.T, table string) {
	t.Helper()
	var fired atomic.Bool
	name := "test:fail_query_" + table
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register(name, func(db *gorm.DB) {
		if db.Statement.Table == table && fired.CompareAndSwap(false, true) {
			_ = db.AddError(errQueryFailed)
		}
	}))
	t.Cleanup(func() { f.db.Callback().Query().Remove(name) })
}

var errQueryFailed = errors.New("query failed")
