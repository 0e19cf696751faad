package tape

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func TestAs(t *testing.T) {
	n, err := As[int](json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	q, err := As[quote](map[string]any{"symbol": "ACME", "price": json.Number("9.5")})
	require.NoError(t, err)
	assert.Equal(t, quote{Symbol: "ACME", Price: 9.5}, q)

	s, err := As[string]("direct")
	require.NoError(t, err)
	assert.Equal(t, "direct", s)

	zero, err := As[quote](nil)
	require.NoError(t, err)
	assert.Equal(t, quote{}, zero)

	_, err = As[int]("not a number")
	require.Error(t, err)
}

func TestArg(t *testing.T) {
	args := []any{"a", json.Number("2")}

	n, err := Arg[int](args, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Arg[string](args, 2)
	require.Error(t, err)
}

func TestTypedAdapters_RecordAndReplay(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	fetches := 0
	fetchQuote := Input1(r, "fetch_quote", func(ctx context.Context, symbol string) (quote, error) {
		fetches++
		return quote{Symbol: symbol, Price: 101.25}, nil
	}, nil)

	convert := Input2(r, "fx_rate", func(ctx context.Context, from, to string) (float64, error) {
		return 0.5, nil
	}, nil)

	var published []string
	publish := Output1(r, "publish", func(ctx context.Context, q quote) (bool, error) {
		published = append(published, q.Symbol)
		return true, nil
	})

	notify := Output2(r, "notify", func(ctx context.Context, channel string, price float64) (string, error) {
		return "msg-1", nil
	})

	var last quote
	var lastMsg string
	op := r.WrapOperation("pricing", func(ctx context.Context, args ...any) (any, error) {
		symbol, err := Arg[string](args, 0)
		if err != nil {
			return nil, err
		}
		q, err := fetchQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		rate, err := convert(ctx, "USD", "EUR")
		if err != nil {
			return nil, err
		}
		q.Price *= rate
		last = q
		if _, err := publish(ctx, q); err != nil {
			return nil, err
		}
		lastMsg, err = notify(ctx, "#prices", q.Price)
		return lastMsg, err
	})

	id := recordOnce(t, c, op, "ACME")
	assert.Equal(t, quote{Symbol: "ACME", Price: 50.625}, last)

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)

	assert.Equal(t, quote{Symbol: "ACME", Price: 50.625}, last)
	assert.Equal(t, "msg-1", lastMsg)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, []string{"ACME"}, published)
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
}

func TestInterceptInput_ReplayedValueHasJSONShape(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	roll := r.InterceptInput("roll", func(ctx context.Context, args ...any) (any, error) {
		return 4, nil
	}, nil)

	var observed []any
	op := r.WrapOperation("dice", func(ctx context.Context, args ...any) (any, error) {
		v, err := roll(ctx)
		if err != nil {
			return nil, err
		}
		observed = append(observed, v)
		n, err := As[int](v)
		return n * 2, err
	})

	id := recordOnce(t, c, op)
	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)

	require.Len(t, observed, 2)
	assert.Equal(t, 4, observed[0])
	assert.Equal(t, json.Number("4"), observed[1])
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
	assert.Equal(t, []any{json.Number("8")}, res.PlaybackOutputs[0].Value)
}
