package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume_CallsHandler(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var gotK, gotV []byte
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		gotK, gotV = k, v
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []byte("k"), gotK)
	require.Equal(t, []byte("v"), gotV)
	require.Len(t, fr.committed, 1)
}

func TestConsumer_Consume_HandlerErrorStops(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Key: []byte("k"), Value: []byte("v")}}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error { return want })
	require.ErrorIs(t, err, want)
	require.Empty(t, fr.committed) // без коммита
}

func TestConsumer_Consume_SkipCommitsAndContinues(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Value: []byte("bad")}, {Value: []byte("good")}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var seen []string
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		seen = append(seen, string(v))
		if string(v) == "bad" {
			return pkgerrors.Wrap(ErrSkipMessage, "decode")
		}
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []string{"bad", "good"}, seen)
	require.Len(t, fr.committed, 2)
}

func TestConsumer_Consume_RetriesSameMessage(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Value: []byte("a")}, {Value: []byte("b")}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr).WithHandlerRetry(time.Millisecond, 4*time.Millisecond, nil)

	var seen []string
	fails := 3
	err := c.Consume(context.Background(), func(ctx context.Context, k, v []byte) error {
		seen = append(seen, string(v))
		if string(v) == "a" && fails > 0 {
			fails--
			return errors.New("enqueue failure: redis down")
		}
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []string{"a", "a", "a", "a", "b"}, seen)
	require.Len(t, fr.committed, 2)
	require.Equal(t, []byte("a"), fr.committed[0].Value)
}

func TestConsumer_Consume_RetryStopsOnCancel(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Value: []byte("a")}}}
	c := newConsumerWithReader(fr).WithHandlerRetry(time.Hour, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	want := errors.New("enqueue failure: redis down")
	err := c.Consume(ctx, func(ctx context.Context, k, v []byte) error {
		cancel()
		return want
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), want.Error())
	require.Empty(t, fr.committed)
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "t", "g")
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
