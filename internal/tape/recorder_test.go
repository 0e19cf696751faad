package tape

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/testutil"
)

func TestReplay_PlainOperationOutput(t *testing.T) {
	ctx := context.Background()
	r, c, clock := newTestRecorder(t)

	op := r.WrapOperation("plain_op", func(ctx context.Context, args ...any) (any, error) {
		clock.Advance(1500 * time.Millisecond)
		return 5, nil
	})

	v, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	id := c.LastRecordingID()
	assert.Equal(t, "plain_op/0001", id)

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)

	expected := []Output{{Key: OperationOutputKey, Value: []any{num("5")}}}
	assert.Equal(t, expected, res.RecordedOutputs)
	assert.Equal(t, expected, res.PlaybackOutputs)
	assert.Equal(t, 1500*time.Millisecond, res.RecordedDuration)
	assert.Equal(t, 1500*time.Millisecond, res.PlaybackDuration)
	assert.Equal(t, id, res.OriginalRecording.ID())
}

func TestReplay_CaughtInputFailureMessage(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	calls := 0
	getValue := r.InterceptInput("get_value", func(ctx context.Context, args ...any) (any, error) {
		calls++
		a, b := args[0].(int), args[1].(int)
		return nil, errors.New("sum = " + strconv.Itoa(a+b))
	}, nil)

	var observed any
	op := r.WrapOperation("sum_message", func(ctx context.Context, args ...any) (any, error) {
		_, err := getValue(ctx, 2, 3)
		observed = err.Error()
		return observed, nil
	})

	v, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sum = 5", v)

	res, err := r.Play(ctx, c.LastRecordingID(), op)
	require.NoError(t, err)

	assert.Equal(t, "sum = 5", observed)
	assert.Equal(t, 1, calls, "source not called during playback")
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
	assert.Equal(t, []any{"sum = 5"}, res.PlaybackOutputs[0].Value)

	entry, err := res.OriginalRecording.GetData("input: get_value args=[2,3]")
	require.NoError(t, err)
	assert.True(t, entry.IsFailure())
	assert.True(t, entry.Structured)
	assert.False(t, entry.Deferred)
}

func TestReplay_RepeatedOutputAliasNumbered(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	var sent [][]any
	sink := r.InterceptOutput("output_function", func(ctx context.Context, args ...any) (any, error) {
		sent = append(sent, args)
		return nil, nil
	})

	op := r.WrapOperation("emit_twice", func(ctx context.Context, args ...any) (any, error) {
		if _, err := sink(ctx, 4, "a"); err != nil {
			return nil, err
		}
		if _, err := sink(ctx, 3, "b"); err != nil {
			return nil, err
		}
		return nil, nil
	})

	_, err := op(ctx)
	require.NoError(t, err)

	res, err := r.Play(ctx, c.LastRecordingID(), op)
	require.NoError(t, err)

	require.Len(t, res.PlaybackOutputs, 3)
	first, second := res.PlaybackOutputs[0], res.PlaybackOutputs[1]
	assert.Equal(t, []any{num("4"), "a"}, first.Value)
	assert.Equal(t, []any{num("3"), "b"}, second.Value)
	assert.NotEqual(t, first.Key, second.Key)
	assert.Contains(t, first.Key, "output_function")
	assert.Contains(t, second.Key, "output_function")
	assert.Equal(t, "output: output_function #1.output", first.Key)
	assert.Equal(t, "output: output_function #2.output", second.Key)

	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
	assert.Len(t, sent, 2, "sink not called during playback")
}

func TestReplay_DelayedInputRejection(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	calls := 0
	getValue := r.InterceptInput("get_value", func(ctx context.Context, args ...any) (any, error) {
		calls++
		a, b := args[0].(int), args[1].(int)
		d := NewDeferred()
		go func() {
			time.Sleep(20 * time.Millisecond)
			d.Reject(errors.New("sum = " + strconv.Itoa(a+b)))
		}()
		return d, nil
	}, nil)

	op := r.WrapOperation("async_sum", func(ctx context.Context, args ...any) (any, error) {
		pending, err := getValue(ctx, 2, 3)
		if err != nil {
			return nil, err
		}
		out := NewDeferred()
		go func() {
			_, err := pending.(*Deferred).Await(ctx)
			out.Resolve(err.Error())
		}()
		return out, nil
	})

	result, err := op(ctx)
	require.NoError(t, err)
	live, err := result.(*Deferred).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sum = 5", live)

	id := c.LastRecordingID()
	require.NotEmpty(t, id)

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "delayed source not called during playback")
	assert.Equal(t, []any{"sum = 5"}, res.PlaybackOutputs[0].Value)
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)

	entry, err := res.OriginalRecording.GetData("input: get_value args=[2,3]")
	require.NoError(t, err)
	assert.True(t, entry.IsFailure())
	assert.True(t, entry.Deferred)
}

func TestRoundTrip_PayloadShapes(t *testing.T) {
	tests := []struct {
		name   string
		source func() (any, error)
	}{
		{"plain number", func() (any, error) { return 42, nil }},
		{"structure", func() (any, error) {
			return map[string]any{"id": "u-1", "tags": []string{"a", "b"}}, nil
		}},
		{"thrown string", func() (any, error) { return nil, Throw("card declined") }},
		{"thrown structure", func() (any, error) {
			return nil, Throw(map[string]any{"reason": "quota", "left": 0})
		}},
		{"structured error", func() (any, error) {
			return nil, &validationError{Field: "email", Code: 7}
		}},
		{"resolved deferred", func() (any, error) { return Resolved([]any{1, "x"}), nil }},
		{"rejected deferred", func() (any, error) {
			return Rejected(&validationError{Field: "zip", Code: 9}), nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, c, _ := newTestRecorder(t)

			src := r.InterceptInput("source", func(ctx context.Context, args ...any) (any, error) {
				return tt.source()
			}, nil)
			op := r.WrapOperation("shapes", func(ctx context.Context, args ...any) (any, error) {
				return src(ctx)
			})

			id := recordOnce(t, c, op)

			res, err := r.Play(ctx, id, op)
			require.NoError(t, err)
			require.Len(t, res.RecordedOutputs, 1)
			assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
		})
	}
}

func TestReplay_StructuredErrorShape(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	src := r.InterceptInput("validate", func(ctx context.Context, args ...any) (any, error) {
		return nil, &validationError{Field: "email", Code: 7}
	}, nil)

	var seen error
	op := r.WrapOperation("validate", func(ctx context.Context, args ...any) (any, error) {
		_, seen = src(ctx)
		return "handled", nil
	})

	id := recordOnce(t, c, op)
	var live *validationError
	require.ErrorAs(t, seen, &live)

	_, err := r.Play(ctx, id, op)
	require.NoError(t, err)

	var replayed *RecordedError
	require.ErrorAs(t, seen, &replayed)
	assert.Equal(t, "*tape.validationError", replayed.Name())
	assert.Equal(t, "invalid email", replayed.Error())
	assert.Equal(t, live.StackTrace(), replayed.StackTrace())
	assert.Equal(t, map[string]any{"field": "email", "code": num("7")}, replayed.Fields())
}

func TestReplay_DeferredShapePreserved(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	src := r.InterceptInput("clock", func(ctx context.Context, args ...any) (any, error) {
		return Resolved("2024-01-02"), nil
	}, nil)
	sync := r.InterceptInput("rand", func(ctx context.Context, args ...any) (any, error) {
		return 4, nil
	}, nil)

	var shapes []string
	op := r.WrapOperation("shapes", func(ctx context.Context, args ...any) (any, error) {
		shapes = shapes[:0]
		a, _ := src(ctx)
		b, _ := sync(ctx)
		_, aDeferred := a.(*Deferred)
		_, bDeferred := b.(*Deferred)
		shapes = append(shapes, strconv.FormatBool(aDeferred), strconv.FormatBool(bDeferred))
		return nil, nil
	})

	id := recordOnce(t, c, op)
	assert.Equal(t, []string{"true", "false"}, shapes)

	_, err := r.Play(ctx, id, op)
	require.NoError(t, err)
	assert.Equal(t, []string{"true", "false"}, shapes)
}

func TestInvocationNumbering(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	sink := r.InterceptOutput("emit", func(ctx context.Context, args ...any) (any, error) {
		return args[0], nil
	})
	op := r.WrapOperation("numbering", func(ctx context.Context, args ...any) (any, error) {
		for i := 0; i < 5; i++ {
			if _, err := sink(ctx, i); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	id := recordOnce(t, c, op)
	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)

	require.Len(t, res.PlaybackOutputs, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, OutputArgsKey("emit", i+1), res.PlaybackOutputs[i].Key)
		assert.Equal(t, []any{num(strconv.Itoa(i))}, res.PlaybackOutputs[i].Value)
	}
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
}

func TestCountersResetPerSession(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	sink := r.InterceptOutput("emit", func(ctx context.Context, args ...any) (any, error) {
		return nil, nil
	})
	op := r.WrapOperation("reset", func(ctx context.Context, args ...any) (any, error) {
		_, err := sink(ctx)
		return nil, err
	})

	first := recordOnce(t, c, op)
	second := recordOnce(t, c, op)
	require.NotEqual(t, first, second)

	for _, id := range []string{first, second} {
		rec, err := c.GetRecording(ctx, id)
		require.NoError(t, err)
		_, err = rec.GetData(OutputArgsKey("emit", 1))
		require.NoError(t, err, "recording %s starts at #1", id)
	}
}

func TestInputOccurrences(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	counter := 0
	next := r.InterceptInput("next_id", func(ctx context.Context, args ...any) (any, error) {
		counter++
		return counter, nil
	}, nil)

	var got []any
	op := r.WrapOperation("ids", func(ctx context.Context, args ...any) (any, error) {
		got = got[:0]
		for i := 0; i < 3; i++ {
			v, err := next(ctx, "orders")
			if err != nil {
				return nil, err
			}
			got = append(got, v)
		}
		return nil, nil
	})

	id := recordOnce(t, c, op)
	assert.Equal(t, []any{1, 2, 3}, got)

	rec, err := c.GetRecording(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, rec.Keys(), `input: next_id args=["orders"]`)
	assert.Contains(t, rec.Keys(), `input: next_id args=["orders"] #2`)
	assert.Contains(t, rec.Keys(), `input: next_id args=["orders"] #3`)

	_, err = r.Play(ctx, id, op)
	require.NoError(t, err)
	assert.Equal(t, []any{num("1"), num("2"), num("3")}, got)
	assert.Equal(t, 3, counter)
}

func TestRecording_DisabledPassesThrough(t *testing.T) {
	ctx := context.Background()
	c := cassette.NewMemory(cassette.WithLogger(discardLogger()))
	r := New(c, WithLogger(discardLogger()))

	sinkCalls := 0
	sink := r.InterceptOutput("emit", func(ctx context.Context, args ...any) (any, error) {
		sinkCalls++
		return "sent", nil
	})
	op := r.WrapOperation("disabled", func(ctx context.Context, args ...any) (any, error) {
		assert.False(t, r.ShouldIntercept())
		return sink(ctx, 1)
	})

	v, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sent", v)
	assert.Equal(t, 1, sinkCalls)
	assert.Empty(t, c.LastRecordingID())
	assert.Equal(t, ModeIdle, r.Mode())
}

func TestRecording_StoresOperationInputAndMetadata(t *testing.T) {
	ctx := context.Background()
	r, c, clock := newTestRecorder(t)

	op := r.WrapOperation("checkout", func(ctx context.Context, args ...any) (any, error) {
		assert.Equal(t, ModeRecording, r.Mode())
		assert.True(t, r.ShouldIntercept())
		clock.Advance(250 * time.Millisecond)
		return "ok", nil
	})

	id := recordOnce(t, c, op, "cart-7", 3)
	assert.Equal(t, ModeIdle, r.Mode())

	rec, err := c.GetRecording(ctx, id)
	require.NoError(t, err)

	input, err := rec.GetData(OperationInputKey)
	require.NoError(t, err)
	assert.Equal(t, []any{"cart-7", num("3")}, input.Value)

	md := rec.Metadata()
	assert.Equal(t, false, md[MetaExceptionInOperation])
	assert.Equal(t, num("250"), md[MetaDuration])
	assert.Equal(t, "Tue, 02 Jan 2024 03:04:05 GMT", md[MetaRecordedAt])
}

func TestPlay_PassesRecordedArguments(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	var seen []any
	op := r.WrapOperation("args", func(ctx context.Context, args ...any) (any, error) {
		seen = args
		return len(args), nil
	})

	id := recordOnce(t, c, op, "cart-7", 3)

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)
	assert.Equal(t, []any{"cart-7", num("3")}, seen)
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
}

func TestOperationFailure_RecordedAndReplayed(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	boom := errors.New("payment gateway down")
	op := r.WrapOperation("pay", func(ctx context.Context, args ...any) (any, error) {
		return nil, boom
	})

	_, err := op(ctx)
	require.ErrorIs(t, err, boom, "caller sees the real failure")

	id := c.LastRecordingID()
	rec, err := c.GetRecording(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, true, rec.Metadata()[MetaExceptionInOperation])

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err, "operation failure is not a playback error")
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)

	form := res.PlaybackOutputs[0].Value.([]any)[0].(map[string]any)
	assert.Equal(t, true, form["structured"])
	assert.Equal(t, "payment gateway down", form["failure"].(map[string]any)["message"])
	assert.Equal(t, ModeIdle, r.Mode())
}

func TestOperationFailure_DeferredRejectionDuringPlayback(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	op := r.WrapOperation("async_fail", func(ctx context.Context, args ...any) (any, error) {
		return Rejected(Throw("late failure")), nil
	})

	result, err := op(ctx)
	require.NoError(t, err)
	_, err = result.(*Deferred).Await(ctx)
	require.EqualError(t, err, "late failure")

	res, err := r.Play(ctx, c.LastRecordingID(), op)
	require.NoError(t, err)
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
	assert.Equal(t, []any{map[string]any{"failure": "late failure", "structured": false}}, res.PlaybackOutputs[0].Value)
}

func TestSessionState_NestedOperationFails(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	inner := r.WrapOperation("inner", func(ctx context.Context, args ...any) (any, error) {
		return "inner", nil
	})

	var innerErr error
	outer := r.WrapOperation("outer", func(ctx context.Context, args ...any) (any, error) {
		_, innerErr = inner(ctx)
		return "outer", nil
	})

	_, err := outer(ctx)
	require.NoError(t, err)
	require.Error(t, innerErr)
	assert.True(t, IsSessionStateFault(innerErr))

	ids, err := c.ListRecordings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer/0001"}, ids)
}

func TestSessionState_PlayDuringRecordingFails(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	noop := r.WrapOperation("noop", func(ctx context.Context, args ...any) (any, error) {
		return nil, nil
	})
	id := recordOnce(t, c, noop)

	var playErr error
	op := r.WrapOperation("busy", func(ctx context.Context, args ...any) (any, error) {
		_, playErr = r.Play(ctx, id, noop)
		return nil, nil
	})
	_, err := op(ctx)
	require.NoError(t, err)
	assert.True(t, IsSessionStateFault(playErr))
}

func TestSessionState_PendingDeferredHoldsSession(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRecorder(t)

	pending := NewDeferred()
	op := r.WrapOperation("slow", func(ctx context.Context, args ...any) (any, error) {
		return pending, nil
	})

	_, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeRecording, r.Mode())

	_, err = op(ctx)
	assert.True(t, IsSessionStateFault(err))

	pending.Resolve("done")
	assert.Equal(t, ModeIdle, r.Mode())
}

func TestPlay_UnknownRecording(t *testing.T) {
	r, _, _ := newTestRecorder(t)

	_, err := r.Play(context.Background(), "missing/1", func(ctx context.Context, args ...any) (any, error) {
		t.Fatal("driver must not run")
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, IsRecordingNotFound(err))
	assert.ErrorIs(t, err, cassette.ErrNotFound)
}

func TestPlay_HarnessErrorPropagatesAndResets(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	op := r.WrapOperation("op", func(ctx context.Context, args ...any) (any, error) {
		return 1, nil
	})
	id := recordOnce(t, c, op)

	broken := errors.New("driver exploded")
	_, err := r.Play(ctx, id, func(ctx context.Context, args ...any) (any, error) {
		return nil, broken
	})
	require.ErrorIs(t, err, broken)
	assert.Equal(t, ModeIdle, r.Mode())

	// The recorder is usable again
	_, err = r.Play(ctx, id, op)
	require.NoError(t, err)
}

func TestPlay_ContextCancelledWhileAwaiting(t *testing.T) {
	r, c, _ := newTestRecorder(t)

	op := r.WrapOperation("op", func(ctx context.Context, args ...any) (any, error) {
		return 1, nil
	})
	id := recordOnce(t, c, op)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Play(ctx, id, func(ctx context.Context, args ...any) (any, error) {
		return NewDeferred(), nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ModeIdle, r.Mode())
}

func TestKeyDerivation_RecordingAbortsSession(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	calls := 0
	src := r.InterceptInput("lookup", func(ctx context.Context, args ...any) (any, error) {
		calls++
		return "live", nil
	}, func(args ...any) (any, error) {
		return nil, errors.New("cannot pick key")
	})
	sinkCalls := 0
	sink := r.InterceptOutput("emit", func(ctx context.Context, args ...any) (any, error) {
		sinkCalls++
		return nil, nil
	})

	op := r.WrapOperation("abort", func(ctx context.Context, args ...any) (any, error) {
		v, err := src(ctx, "a")
		if err != nil {
			return nil, err
		}
		assert.False(t, r.ShouldIntercept(), "aborted session stops intercepting")
		_, err = sink(ctx, v)
		return v, err
	})

	v, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live", v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, sinkCalls)
	assert.Empty(t, c.LastRecordingID(), "aborted recording is not saved")
	assert.Equal(t, ModeIdle, r.Mode())
}

func TestKeyDerivation_PlaybackCapturedAsFailure(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	failExtract := false
	src := r.InterceptInput("lookup", func(ctx context.Context, args ...any) (any, error) {
		return "live", nil
	}, func(args ...any) (any, error) {
		if failExtract {
			return nil, errors.New("cannot pick key")
		}
		return args, nil
	})
	op := r.WrapOperation("derive", func(ctx context.Context, args ...any) (any, error) {
		return src(ctx, "a")
	})

	id := recordOnce(t, c, op)
	failExtract = true

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err, "key derivation fault is not fatal during playback")

	form := res.PlaybackOutputs[0].Value.([]any)[0].(map[string]any)
	failure := form["failure"].(map[string]any)
	assert.Equal(t, "*tape.Error", failure["name"])
	assert.Contains(t, failure["message"], string(ErrCodeKeyDerivation))
}

func TestPlayback_MissingInputFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	useNewSource := false
	calls := 0
	src := r.InterceptInput("added_later", func(ctx context.Context, args ...any) (any, error) {
		calls++
		return "fresh", nil
	}, nil)
	op := r.WrapOperation("evolving", func(ctx context.Context, args ...any) (any, error) {
		if !useNewSource {
			return "old", nil
		}
		return src(ctx)
	})

	id := recordOnce(t, c, op)
	useNewSource = true

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []any{"fresh"}, res.PlaybackOutputs[0].Value)
}

func TestPlayback_MissingOutputResultIsKeyMissing(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	emitTwice := false
	sink := r.InterceptOutput("emit", func(ctx context.Context, args ...any) (any, error) {
		return nil, nil
	})
	var sinkErr error
	op := r.WrapOperation("outputs", func(ctx context.Context, args ...any) (any, error) {
		if _, err := sink(ctx, 1); err != nil {
			return nil, err
		}
		if emitTwice {
			_, sinkErr = sink(ctx, 2)
			return nil, sinkErr
		}
		return nil, nil
	})

	id := recordOnce(t, c, op)
	emitTwice = true

	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)
	assert.True(t, IsKeyMissing(sinkErr))

	var te *Error
	require.ErrorAs(t, sinkErr, &te)
	assert.Equal(t, OutputResultKey("emit", 2), te.Key)
	assert.Len(t, res.PlaybackOutputs, 3, "two sink outputs and the failed operation output")
}

func TestMute_SecretIsolation(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	secretCalls := 0
	getSecret := r.Mute(func(ctx context.Context, args ...any) (any, error) {
		secretCalls++
		return "secret", nil
	})

	var seen any
	op := r.WrapOperation("vault_access", func(ctx context.Context, args ...any) (any, error) {
		v, err := getSecret(ctx)
		if err != nil {
			return nil, err
		}
		seen = v
		return "done", nil
	})

	id := recordOnce(t, c, op)
	assert.Equal(t, "secret", seen)

	doc, ok := c.Document(id)
	require.True(t, ok)
	assert.NotContains(t, string(doc), "secret")

	_, err := r.Play(ctx, id, op)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, seen)
	assert.Equal(t, 1, secretCalls)
}

func TestMute_Placeholder(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	token := r.Mute(func(ctx context.Context, args ...any) (any, error) {
		return "tok-live", nil
	}, "tok-placeholder")

	var seen any
	op := r.WrapOperation("token", func(ctx context.Context, args ...any) (any, error) {
		seen, _ = token(ctx)
		return nil, nil
	})

	id := recordOnce(t, c, op)
	_, err := r.Play(ctx, id, op)
	require.NoError(t, err)
	assert.Equal(t, "tok-placeholder", seen)
}

func TestMute_SuppressesNestedInterception(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	sink := r.InterceptOutput("audit", func(ctx context.Context, args ...any) (any, error) {
		return nil, nil
	})
	login := r.Mute(func(ctx context.Context, args ...any) (any, error) {
		_, err := sink(ctx, "password used")
		return "session", err
	})
	op := r.WrapOperation("login", func(ctx context.Context, args ...any) (any, error) {
		_, err := login(ctx)
		return nil, err
	})

	id := recordOnce(t, c, op)
	res, err := r.Play(ctx, id, op)
	require.NoError(t, err)

	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
	for _, out := range res.RecordedOutputs {
		assert.False(t, strings.Contains(out.Key, "audit"))
	}
}

func TestReentrancyGuard_NestedCallsNotRecorded(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	inner := r.InterceptInput("inner", func(ctx context.Context, args ...any) (any, error) {
		return "inner", nil
	}, nil)
	outer := r.InterceptOutput("outer", func(ctx context.Context, args ...any) (any, error) {
		assert.False(t, r.ShouldIntercept())
		return inner(ctx)
	})
	op := r.WrapOperation("nested", func(ctx context.Context, args ...any) (any, error) {
		return outer(ctx, 1)
	})

	id := recordOnce(t, c, op)
	rec, err := c.GetRecording(ctx, id)
	require.NoError(t, err)

	for _, key := range rec.Keys() {
		assert.NotContains(t, key, "input: inner")
	}
	entry, err := rec.GetData(OutputResultKey("outer", 1))
	require.NoError(t, err)
	assert.Equal(t, "inner", entry.Value)
}

func TestStorageFault_Swallowed(t *testing.T) {
	ctx := context.Background()
	fc := &failingCassette{Memory: cassette.NewMemory(
		cassette.WithIDGenerator(testutil.NewSequenceGenerator("1")),
	)}
	r := New(fc, WithLogger(discardLogger()))
	r.EnableRecording()

	op := r.WrapOperation("op", func(ctx context.Context, args ...any) (any, error) {
		return "fine", nil
	})

	v, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fine", v)
	assert.Equal(t, 1, fc.saveCalls)
	assert.Equal(t, ModeIdle, r.Mode())
}

func TestRecording_UnserializableResultAbortsSession(t *testing.T) {
	ctx := context.Background()
	r, c, _ := newTestRecorder(t)

	src := r.InterceptInput("conn", func(ctx context.Context, args ...any) (any, error) {
		return make(chan int), nil
	}, nil)
	op := r.WrapOperation("conn", func(ctx context.Context, args ...any) (any, error) {
		ch, err := src(ctx)
		if err != nil {
			return nil, err
		}
		_, ok := ch.(chan int)
		return ok, nil
	})

	v, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, v, "caller still gets the live value")
	assert.Empty(t, c.LastRecordingID())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "idle", ModeIdle.String())
	assert.Equal(t, "recording", ModeRecording.String())
	assert.Equal(t, "playback", ModePlayback.String())
}

func TestReplay_DecomposedStringsThroughSQLite(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteCassette(t, 1)
	r := New(store, WithLogger(discardLogger()))
	r.EnableRecording()

	const decomposed = "cafe\u0301"

	calls := 0
	dish := r.InterceptInput(decomposed, func(ctx context.Context, args ...any) (any, error) {
		calls++
		return decomposed, nil
	}, nil)
	order := r.InterceptOutput(decomposed, func(ctx context.Context, args ...any) (any, error) {
		return "queued", nil
	})

	op := r.WrapOperation("menu", func(ctx context.Context, args ...any) (any, error) {
		v, err := dish(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := order(ctx, v); err != nil {
			return nil, err
		}
		return v == decomposed, nil
	})

	live, err := op(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, live)

	res, err := r.Play(ctx, "menu/0001", op)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "input source not called during playback")
	assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs)
	require.Len(t, res.PlaybackOutputs, 2)
	assert.Equal(t, "output: "+decomposed+" #1.output", res.PlaybackOutputs[0].Key)
	assert.Equal(t, []any{decomposed}, res.PlaybackOutputs[0].Value)
	assert.Equal(t, []any{true}, res.PlaybackOutputs[1].Value)

	_, err = res.OriginalRecording.GetData("input: " + decomposed + " args=[]")
	require.NoError(t, err)
}
