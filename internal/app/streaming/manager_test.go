package streaming

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

// echoExtractor reports the accumulated text and one location per "#" seen.
type echoExtractor struct {
	mu    sync.Mutex
	texts []string
	block chan struct{}
}

func (e *echoExtractor) Extract(_ context.Context, accumulated string) models.ExtractionResult {
	e.mu.Lock()
	e.texts = append(e.texts, accumulated)
	block := e.block
	e.mu.Unlock()
	if block != nil && strings.HasSuffix(accumulated, "slow") {
		<-block
	}

	locs := []models.Location{}
	for i := 0; i < strings.Count(accumulated, "#"); i++ {
		locs = append(locs, models.Location{Name: "place"})
	}
	return models.ExtractionResult{Text: accumulated, Locations: locs}
}

func TestSession_FeedAccumulatesDeltas(t *testing.T) {
	ex := &echoExtractor{}
	m := NewManager(ex, clockwork.NewFakeClock(), nil)
	s := m.Begin(context.Background(), "conv-1")
	defer m.End(s)

	u1, err := s.Feed("Hello ")
	require.NoError(t, err)
	u2, err := s.Feed("#world")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), u1.Seq)
	assert.Equal(t, uint64(2), u2.Seq)
	assert.Equal(t, "Hello #world", u2.Result.Text)
	assert.Len(t, u2.Result.Locations, 1)
	assert.Equal(t, []string{"Hello ", "Hello #world"}, ex.texts)
	assert.Equal(t, "Hello #world", s.Accumulated())

	latest, ok := m.Latest("conv-1")
	require.True(t, ok)
	assert.Equal(t, u2.Seq, latest.Seq)
}

func TestManager_BeginSupersedesPreviousSession(t *testing.T) {
	m := NewManager(&echoExtractor{}, clockwork.NewFakeClock(), nil)

	old := m.Begin(context.Background(), "conv-1")
	_, err := old.Feed("# first answer")
	require.NoError(t, err)

	fresh := m.Begin(context.Background(), "conv-1")
	defer m.End(fresh)

	assert.Error(t, old.Context().Err())
	_, err = old.Feed(" more")
	assert.ErrorIs(t, err, models.ErrSessionSuperseded)

	_, ok := m.Latest("conv-1")
	assert.False(t, ok, "results of the old stream are discarded")

	_, err = fresh.Feed("new")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Active())
}

func TestManager_SupersededWhileExtracting(t *testing.T) {
	ex := &echoExtractor{block: make(chan struct{})}
	m := NewManager(ex, clockwork.NewFakeClock(), nil)

	old := m.Begin(context.Background(), "conv-1")
	errs := make(chan error, 1)
	go func() {
		_, err := old.Feed("# slow")
		errs <- err
	}()

	require.Eventually(t, func() bool {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		return len(ex.texts) == 1
	}, time.Second, time.Millisecond)

	fresh := m.Begin(context.Background(), "conv-1")
	defer m.End(fresh)
	close(ex.block)

	assert.ErrorIs(t, <-errs, models.ErrSessionSuperseded)
	_, ok := m.Latest("conv-1")
	assert.False(t, ok)
}

func TestManager_LatestWins(t *testing.T) {
	ex := &echoExtractor{block: make(chan struct{})}
	m := NewManager(ex, clockwork.NewFakeClock(), nil)
	s := m.Begin(context.Background(), "conv-1")
	defer m.End(s)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Feed("# slow")
		errs <- err
	}()
	require.Eventually(t, func() bool {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		return len(ex.texts) == 1
	}, time.Second, time.Millisecond)

	u2, err := s.Feed(" #fast")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), u2.Seq)

	close(ex.block)
	assert.ErrorIs(t, <-errs, ErrStaleUpdate)

	latest, ok := m.Latest("conv-1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), latest.Seq)
	assert.Len(t, latest.Result.Locations, 2)
}

func TestManager_ParentCancellation(t *testing.T) {
	m := NewManager(&echoExtractor{}, clockwork.NewFakeClock(), nil)
	parent, cancel := context.WithCancel(context.Background())
	s := m.Begin(parent, "")
	defer m.End(s)
	assert.NotEmpty(t, s.ConversationID)

	cancel()
	_, err := s.Feed("x")
	assert.ErrorIs(t, err, models.ErrSessionSuperseded)
}

func TestManager_CancelAndCleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(&echoExtractor{}, clock, nil)

	a := m.Begin(context.Background(), "a")
	assert.True(t, m.Cancel("a"))
	assert.False(t, m.Cancel("a"))
	assert.Error(t, a.Context().Err())

	m.Begin(context.Background(), "b")
	clock.Advance(2 * time.Hour)
	m.Begin(context.Background(), "c")

	assert.Equal(t, 1, m.CleanupExpired(time.Hour))
	assert.Equal(t, 1, m.Active())
}

func TestEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(&echoExtractor{}, clock, nil)
	s := m.Begin(context.Background(), "conv-1")
	defer m.End(s)

	u, err := s.Feed("#")
	require.NoError(t, err)

	text := NewTextEvent(s, u)
	assert.Equal(t, EventTypeText, text.Type)
	assert.Equal(t, "#", text.Text)
	assert.Equal(t, clock.Now(), text.Timestamp)

	locs := NewLocationsEvent(s, u)
	assert.Equal(t, EventTypeLocations, locs.Type)
	assert.Len(t, locs.Locations, 1)
	assert.NotEqual(t, text.EventID, locs.EventID)

	done := NewCompleteEvent(s, u, "Paris")
	assert.True(t, done.IsFinal)
	assert.Equal(t, "Paris", done.City)

	failed := NewErrorEvent(s, u.Seq, "try again")
	assert.Equal(t, EventTypeError, failed.Type)
	assert.True(t, failed.IsFinal)

	ch := make(chan StreamEvent, 1)
	assert.True(t, SendEventSafe(context.Background(), ch, text, time.Second))
	assert.False(t, SendEventSafe(context.Background(), ch, text, 10*time.Millisecond))
}
