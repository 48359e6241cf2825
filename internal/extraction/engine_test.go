package extraction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/circuitbreaker"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/extraction"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/llm/mocks"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/telemetry"
)

const listingText = "Charming single family home at 123 Main St, Austin, TX 78701. " +
	"Offered at $450,000. 3 beds, 2 baths, 1,850 sq ft. Built in 1998."

func engineConfig() extraction.Config {
	return extraction.Config{
		LLMMaxAttempts: 2,
		Backoff:        retry.Config{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func TestExtract_PrimarySuccess(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().
		Complete(gomock.Any(), gomock.Any(), extraction.SystemPrompt(), 1024).
		DoAndReturn(func(_ context.Context, prompt, _ string, _ int) (string, error) {
			assert.Contains(t, prompt, "Offered at $450,000")
			return "Sure.\n<<<LISTING>>>{\"price\": \"$450,000\", \"bedrooms\": 3, \"baths\": 2, \"zip\": \"78701\"}<<<END>>>", nil
		})

	rec := &telemetry.Recorder{}
	e := extraction.NewEngine(client, engineConfig(), extraction.WithSink(rec))
	res := e.Extract(context.Background(), extraction.Input{ItemID: "item-1", Content: listingText, ContentType: "text/plain"})

	assert.Equal(t, domain.MethodLLMPrimary, res.Method)
	assert.Equal(t, "item-1", res.ItemID)
	assert.Equal(t, domain.Fields{"price": 450000.0, "beds": 3.0, "baths": 2.0, "zip": "78701"}, res.Fields)
	assert.Contains(t, res.RawModelOutput, "<<<LISTING>>>")

	events := rec.Events(telemetry.KindExtraction)
	require.Len(t, events, 1)
	assert.Equal(t, "llm_primary", events[0].Fields["method"])
}

func TestExtract_MalformedTwiceFallsBack(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("I could not find a listing, sorry!", nil).Times(2)

	e := extraction.NewEngine(client, engineConfig())
	res := e.Extract(context.Background(), extraction.Input{ItemID: "item-2", Content: listingText})

	assert.Equal(t, domain.MethodFallback, res.Method)
	assert.Equal(t, "I could not find a listing, sorry!", res.RawModelOutput)
	assert.InDelta(t, 450000, res.Fields["price"], 0)
	assert.InDelta(t, 3, res.Fields["beds"], 0)
	require.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Notes[len(res.Notes)-1], "malformed model output")
}

func TestExtract_RecoversOnSecondAttempt(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	gomock.InOrder(
		client.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("upstream timeout")),
		client.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("```json\n{\"price\": 399000}\n```", nil),
	)

	e := extraction.NewEngine(client, engineConfig())
	res := e.Extract(context.Background(), extraction.Input{ItemID: "item-3", Content: listingText})

	assert.Equal(t, domain.MethodLLMPrimary, res.Method)
	assert.Equal(t, domain.Fields{"price": 399000.0}, res.Fields)
}

func TestExtract_OpenCircuitSkipsModel(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	inner := mocks.NewMockClient(ctrl)
	inner.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	_ = breaker.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	e := extraction.NewEngine(llm.NewBreakerClient(inner, breaker, time.Second), engineConfig())
	res := e.Extract(context.Background(), extraction.Input{ItemID: "item-4", Content: listingText})

	assert.Equal(t, domain.MethodFallback, res.Method)
	assert.Contains(t, res.Notes, "primary skipped: "+extraction.ReasonCircuitOpen)
	assert.NotEmpty(t, res.Fields)
}

func TestExtract_NoClientUsesFallback(t *testing.T) {
	t.Parallel()

	e := extraction.NewEngine(nil, engineConfig())
	res := e.Extract(context.Background(), extraction.Input{ItemID: "item-5", Content: listingText})

	assert.Equal(t, domain.MethodFallback, res.Method)
	assert.Equal(t, domain.Fields{
		"price":         450000.0,
		"beds":          3.0,
		"baths":         2.0,
		"sqft":          1850.0,
		"year_built":    1998.0,
		"state":         "TX",
		"zip":           "78701",
		"city":          "Austin",
		"address":       "123 Main St",
		"property_type": extraction.TypeSingleFamily,
	}, res.Fields)
}

func TestExtract_JSONContentIsDeterministicFallback(t *testing.T) {
	t.Parallel()

	e := extraction.NewEngine(nil, engineConfig())
	res := e.Extract(context.Background(), extraction.Input{
		ItemID:      "item-6",
		Content:     `{"listing": {"ListPrice": 525000, "BedroomsTotal": 4, "Bathrooms": 2.5, "PostalCode": 78704}}`,
		ContentType: "application/json",
	})

	assert.Equal(t, domain.MethodFallback, res.Method)
	assert.Equal(t, []string{"decoded json content"}, res.Notes)
	assert.Empty(t, res.RawModelOutput)
	assert.Equal(t, domain.Fields{"price": 525000.0, "baths": 2.5, "zip": "78704"}, res.Fields)
}

func TestExtract_NothingFound(t *testing.T) {
	t.Parallel()

	e := extraction.NewEngine(nil, engineConfig())
	res := e.Extract(context.Background(), extraction.Input{ItemID: "item-7", Content: "Page not found"})

	assert.True(t, res.Empty())
	assert.Equal(t, domain.MethodFallback, res.Method)
}

func TestExtract_CancelledContextFallsBack(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Complete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := extraction.NewEngine(client, engineConfig())
	res := e.Extract(ctx, extraction.Input{ItemID: "item-8", Content: listingText})
	assert.Equal(t, domain.MethodFallback, res.Method)
}
