package llmchat

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/city"
	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/extract"
	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
	"github.com/FACorreiaa/loci-chatmap/internal/app/streaming"
)

// fakeChatClient replays chunks as a model stream. When gate is set, it waits on
// gate before each chunk after the first.
type fakeChatClient struct {
	mu       sync.Mutex
	chunks   []string
	err      error
	startErr error
	gate     chan struct{}
	prompts  []string
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func (f *fakeChatClient) GenerateContentStream(ctx context.Context, prompt string, _ *genai.GenerateContentConfig) (iter.Seq2[*genai.GenerateContentResponse, error], error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	chunks, gate, streamErr, startErr := f.chunks, f.gate, f.err, f.startErr
	f.mu.Unlock()
	if startErr != nil {
		return nil, startErr
	}
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for i, chunk := range chunks {
			if i > 0 && gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				}
			}
			if !yield(textResponse(chunk), nil) {
				return
			}
		}
		if streamErr != nil {
			yield(nil, streamErr)
		}
	}, nil
}

type fixture struct {
	service *ChatServiceImpl
	streams *streaming.Manager
	cities  *city.ServiceImpl
	client  *fakeChatClient
}

func newFixture(client *fakeChatClient) fixture {
	extractor := extract.NewExtractor(
		lookup.Default(),
		lookup.NewTemplateImageResolver(""),
		extract.WithRandom(extract.NewRandom(42)),
		extract.WithClock(clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))),
	)
	streams := streaming.NewManager(extractor, clockwork.NewFakeClock(), nil)
	cities := city.NewCityService(city.NewRegister([]string{"Lisbon"}, nil), nil, nil)

	var chat ChatClient
	if client != nil {
		chat = client
	}
	return fixture{
		service: NewChatService(chat, streams, cities, nil),
		streams: streams,
		cities:  cities,
		client:  client,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []streaming.StreamEvent
}

func (r *recorder) emit(ev streaming.StreamEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofType(eventType string) []streaming.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []streaming.StreamEvent
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) last() streaming.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestChatService_StreamChatEmitsLocationsAsTheyArrive(t *testing.T) {
	f := newFixture(&fakeChatClient{chunks: []string{
		"Here are two classics.\n",
		`{"locations":[{"name":"Eiffel Tower","coordinates":[48.8584,2.2945]},`,
		`{"name":"Louvre Museum","coordinates":[48.8606,2.3376]}]}`,
	}})
	rec := &recorder{}

	err := f.service.StreamChat(context.Background(), models.ChatRequest{
		ConversationID: "conv-1",
		Message:        "What should I see?",
	}, rec.emit)
	require.NoError(t, err)

	require.NotEmpty(t, rec.events)
	assert.Equal(t, streaming.EventTypeText, rec.events[0].Type)
	assert.Equal(t, "Here are two classics.", rec.events[0].Text)

	locEvents := rec.ofType(streaming.EventTypeLocations)
	require.Len(t, locEvents, 1)
	require.Len(t, locEvents[0].Locations, 2)
	assert.Equal(t, "Eiffel Tower", locEvents[0].Locations[0].Name)
	assert.Equal(t, string(models.SourceJSON), locEvents[0].Source)
	assert.Equal(t, "Paris", locEvents[0].City)

	final := rec.last()
	assert.Equal(t, streaming.EventTypeComplete, final.Type)
	assert.True(t, final.IsFinal)
	assert.Equal(t, "Paris", final.City)
	assert.Equal(t, "Paris", f.cities.Current(context.Background()))

	var prev uint64
	for _, ev := range rec.events {
		assert.Equal(t, "conv-1", ev.ConversationID)
		assert.GreaterOrEqual(t, ev.Seq, prev)
		prev = ev.Seq
	}
	assert.Equal(t, 0, f.streams.Active())
}

func TestChatService_StreamChatUsesCityContext(t *testing.T) {
	f := newFixture(&fakeChatClient{chunks: []string{"Sure."}})
	rec := &recorder{}

	err := f.service.StreamChat(context.Background(), models.ChatRequest{
		Message:  "Anything fun?",
		CityName: "porto",
	}, rec.emit)
	require.NoError(t, err)

	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	require.Len(t, f.client.prompts, 1)
	assert.Contains(t, f.client.prompts[0], "currently exploring Porto")
	assert.Contains(t, f.client.prompts[0], "User: Anything fun?")
	assert.Equal(t, "Porto", f.cities.Current(context.Background()))
	assert.NotEmpty(t, rec.last().ConversationID)
}

func TestChatService_StreamChatWeather(t *testing.T) {
	f := newFixture(&fakeChatClient{chunks: []string{"I'll check the weather ", "in there."}})
	rec := &recorder{}

	err := f.service.StreamChat(context.Background(), models.ChatRequest{Message: "How is the weather?"}, rec.emit)
	require.NoError(t, err)

	weather := rec.ofType(streaming.EventTypeWeather)
	require.Len(t, weather, 1)
	assert.Equal(t, "there", weather[0].WeatherLocation)
	assert.Equal(t, "Lisbon", weather[0].City)
	assert.Empty(t, rec.ofType(streaming.EventTypeLocations))
	assert.Equal(t, streaming.EventTypeComplete, rec.last().Type)
}

func TestChatService_StreamChatErrorsAreGeneric(t *testing.T) {
	t.Run("stream error", func(t *testing.T) {
		f := newFixture(&fakeChatClient{
			chunks: []string{"Let me think"},
			err:    errors.New("upstream 503: quota exceeded for project 1234"),
		})
		rec := &recorder{}

		err := f.service.StreamChat(context.Background(), models.ChatRequest{Message: "hi"}, rec.emit)
		require.Error(t, err)

		final := rec.last()
		assert.Equal(t, streaming.EventTypeError, final.Type)
		assert.True(t, final.IsFinal)
		assert.Equal(t, GenericErrorMessage, final.Error)
		assert.NotContains(t, final.Error, "quota")
	})

	t.Run("start error", func(t *testing.T) {
		f := newFixture(&fakeChatClient{startErr: errors.New("dial tcp: refused")})
		rec := &recorder{}

		err := f.service.StreamChat(context.Background(), models.ChatRequest{Message: "hi"}, rec.emit)
		require.Error(t, err)
		require.Len(t, rec.events, 1)
		assert.Equal(t, GenericErrorMessage, rec.events[0].Error)
	})
}

func TestChatService_Unavailable(t *testing.T) {
	f := newFixture(nil)
	assert.False(t, f.service.Available())

	rec := &recorder{}
	err := f.service.StreamChat(context.Background(), models.ChatRequest{Message: "hi"}, rec.emit)
	assert.ErrorIs(t, err, ErrChatUnavailable)
	assert.Empty(t, rec.events)
}

func TestChatService_NewMessageSupersedesStream(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(&fakeChatClient{
		chunks: []string{"Old reply about ", "Rome"},
		gate:   gate,
	})
	first := &recorder{}
	firstText := make(chan struct{})
	var once sync.Once

	done := make(chan error, 1)
	go func() {
		done <- f.service.StreamChat(context.Background(), models.ChatRequest{
			ConversationID: "conv-1",
			Message:        "first",
		}, func(ev streaming.StreamEvent) error {
			err := first.emit(ev)
			if ev.Type == streaming.EventTypeText {
				once.Do(func() { close(firstText) })
			}
			return err
		})
	}()
	<-firstText

	f.client.mu.Lock()
	f.client.gate = nil
	f.client.chunks = []string{"New reply."}
	f.client.mu.Unlock()

	second := &recorder{}
	require.NoError(t, f.service.StreamChat(context.Background(), models.ChatRequest{
		ConversationID: "conv-1",
		Message:        "second",
	}, second.emit))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, models.ErrSessionSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded stream did not stop")
	}

	assert.Empty(t, first.ofType(streaming.EventTypeComplete))
	assert.Empty(t, first.ofType(streaming.EventTypeError))
	assert.Equal(t, streaming.EventTypeComplete, second.last().Type)
	assert.Equal(t, "New reply.", second.last().Text)
}

func TestChatService_ClientDisconnect(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(&fakeChatClient{chunks: []string{"one ", "two"}, gate: gate})
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	err := f.service.StreamChat(ctx, models.ChatRequest{Message: "hi"}, func(ev streaming.StreamEvent) error {
		cancel()
		return rec.emit(ev)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.ofType(streaming.EventTypeError))
	assert.Equal(t, 0, f.streams.Active())
}

func TestBatchKey(t *testing.T) {
	a := models.ExtractionResult{Source: models.SourceJSON, Locations: []models.Location{
		{ID: "loc-1-0", Name: "Eiffel Tower", Position: models.Position{Lat: 48.8584, Lng: 2.2945}},
	}}
	b := a
	b.Locations = []models.Location{
		{ID: "loc-2-0", Name: "Eiffel Tower", Position: models.Position{Lat: 48.8584, Lng: 2.2945}},
	}
	assert.Equal(t, batchKey(a), batchKey(b))
	assert.Empty(t, batchKey(models.ExtractionResult{}))

	b.Source = models.SourceText
	assert.NotEqual(t, batchKey(a), batchKey(b))
}
