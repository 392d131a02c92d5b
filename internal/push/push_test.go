package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTitle string
		wantBody  string
	}{
		{
			name:      "notification block",
			raw:       `{"notification":{"title":"Có đơn mới","body":"Đơn DH12 gần bạn"}}`,
			wantTitle: "Có đơn mới",
			wantBody:  "Đơn DH12 gần bạn",
		},
		{
			name:      "data only",
			raw:       `{"data":{"title":"Đơn DH13","body":"Quận 1","order_id":"13"}}`,
			wantTitle: "Đơn DH13",
			wantBody:  "Quận 1",
		},
		{
			name:      "defaults",
			raw:       `{"data":{"order_id":"14"}}`,
			wantTitle: DefaultTitle,
			wantBody:  DefaultBody,
		},
		{
			name:      "blank notification falls back to data",
			raw:       `{"notification":{"title":"  "},"data":{"title":"Từ data"}}`,
			wantTitle: "Từ data",
			wantBody:  DefaultBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, msg.Title)
			assert.Equal(t, tt.wantBody, msg.Body)
		})
	}

	_, err := Parse([]byte("not json"))
	assert.Error(t, err)
}

func TestMulti(t *testing.T) {
	var got []string
	first := NotifierFunc(func(ctx context.Context, msg Message) error {
		got = append(got, "first")
		return errors.New("first failed")
	})
	second := NotifierFunc(func(ctx context.Context, msg Message) error {
		got = append(got, "second")
		return nil
	})

	err := Multi(first, second).Notify(context.Background(), Message{Title: DefaultTitle})
	assert.EqualError(t, err, "first failed")
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestDeviceRegistrar(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewDeviceRegistrar(zap.New(core))

	require.NoError(t, r.Register(context.Background(), " fcm-token "))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "fcm-token", logs.All()[0].ContextMap()["token"])

	assert.Error(t, r.Register(context.Background(), ""))
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "shipper.push" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumer_ConsumeClaim(t *testing.T) {
	var delivered []Message
	notifier := NotifierFunc(func(ctx context.Context, msg Message) error {
		delivered = append(delivered, msg)
		return nil
	})
	c := &Consumer{topic: "shipper.push", notifier: notifier, logger: zap.NewNop()}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"notification":{"title":"A"}}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte(`{broken`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: []byte(`{}`)}
	close(claim.messages)

	sess := &fakeSession{ctx: context.Background()}

	done := make(chan error, 1)
	go func() { done <- c.ConsumeClaim(sess, claim) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("ConsumeClaim did not return")
	}

	require.Len(t, delivered, 2)
	assert.Equal(t, "A", delivered[0].Title)
	assert.Equal(t, DefaultTitle, delivered[1].Title)
	assert.Equal(t, []int64{1, 2, 3}, sess.marked, "malformed messages are skipped but committed")
}

func TestNewConsumer_NoBrokers(t *testing.T) {
	_, err := NewConsumer(nil, "group", "topic", NewLogNotifier(zap.NewNop()), zap.NewNop())
	assert.Error(t, err)
}
