package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/messaging/kafka"
)

func overdueEvent(obligationID string) domain.LedgerEvent {
	return domain.LedgerEvent{
		EventType:       domain.EventObligationOverdue,
		ObligationID:    obligationID,
		Number:          "INV-2026-04-000007",
		Kind:            domain.ObligationKindInvoice,
		CounterpartyRef: "trader-1",
		Currency:        "USD",
		Status:          domain.ObligationStatusOverdue,
		TotalMinor:      12500,
		RemainingMinor:  12500,
	}
}

func envelopeBytes(t *testing.T, event domain.LedgerEvent) []byte {
	t.Helper()
	msg, err := event.OutboxMessage()
	require.NoError(t, err)
	msg.ID = "outbox-" + event.ObligationID
	raw, err := json.Marshal(kafka.NewEnvelope(msg, time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return raw
}

// consumerDLQValue повторяет формат kafka.Consumer.sendToDLQ.
func consumerDLQValue(t *testing.T, event domain.LedgerEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"original_topic": kafka.TopicLedgerEvents,
		"original_key":   event.ObligationID,
		"original_value": string(envelopeBytes(t, event)),
		"error_message":  "notifier unavailable",
		"retry_count":    3,
	})
	require.NoError(t, err)
	return raw
}

// outboxDLQValue повторяет формат outbox worker, опубликованный через kafka.OutboxPublisher.
func outboxDLQValue(t *testing.T, event domain.LedgerEvent) []byte {
	t.Helper()
	msg, err := event.OutboxMessage()
	require.NoError(t, err)
	msg.ID = "outbox-" + event.ObligationID

	dlq, err := json.Marshal(map[string]any{
		"outbox_id":      msg.ID,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"event_type":     msg.EventType,
		"payload":        json.RawMessage(msg.Payload),
		"publish_error":  "kafka: client has run out of available brokers",
		"attempts":       3,
	})
	require.NoError(t, err)
	msg.Payload = dlq

	raw, err := json.Marshal(kafka.NewEnvelope(msg, time.Now()))
	require.NoError(t, err)
	return raw
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestExtractReplayMessage_ConsumerDLQPayload(t *testing.T) {
	event := overdueEvent("obl-1")
	value := consumerDLQValue(t, event)

	got, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: value}, "fallback-topic")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, kafka.TopicLedgerEvents, got.topic)
	assert.Equal(t, "obl-1", got.key)
	assert.Equal(t, string(domain.EventObligationOverdue), got.eventType)

	replayed, err := kafka.ParseLedgerEvent(&sarama.ConsumerMessage{Value: got.value})
	require.NoError(t, err)
	assert.Equal(t, event.Number, replayed.Number)
}

func TestExtractReplayMessage_ConsumerDLQWithoutTopicUsesDefault(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"original_value": string(envelopeBytes(t, overdueEvent("obl-2"))),
	})
	require.NoError(t, err)

	got, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, "ledger.replay")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ledger.replay", got.topic)
	assert.Equal(t, "obl-2", got.key, "key falls back to obligation id")
}

func TestExtractReplayMessage_ConsumerDLQCorruptOriginal(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"original_topic": kafka.TopicLedgerEvents,
		"original_value": `{"id":"evt-1"}`,
	})
	require.NoError(t, err)

	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, kafka.TopicLedgerEvents)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestExtractReplayMessage_OutboxDLQPayload(t *testing.T) {
	event := overdueEvent("obl-3")

	got, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: outboxDLQValue(t, event)}, kafka.TopicLedgerEvents)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, kafka.TopicLedgerEvents, got.topic)
	assert.Equal(t, "obl-3", got.key)

	envelope, err := kafka.ParseEnvelope(&sarama.ConsumerMessage{Value: got.value})
	require.NoError(t, err)
	assert.Equal(t, "outbox-obl-3", envelope.ID)
	assert.Equal(t, domain.AggregateObligation, envelope.AggregateType)

	replayed, err := domain.ParseLedgerEvent(envelope.Payload)
	require.NoError(t, err)
	assert.Equal(t, event.ObligationID, replayed.ObligationID)
	assert.Equal(t, event.RemainingMinor, replayed.RemainingMinor)
}

func TestExtractReplayMessage_OutboxMissingNestedPayload(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"id":             "outbox-1",
		"aggregate_type": domain.AggregateObligation,
		"aggregate_id":   "obl-1",
		"event_type":     string(domain.EventObligationSettled),
		"payload": map[string]any{
			"outbox_id":  "outbox-1",
			"event_type": string(domain.EventObligationSettled),
		},
	})
	require.NoError(t, err)

	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, kafka.TopicLedgerEvents)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestExtractReplayMessage_UnknownPayload(t *testing.T) {
	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, kafka.TopicLedgerEvents)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`not json`)}, kafka.TopicLedgerEvents)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "x", firstNonEmpty("", "  ", "x", "y"))
	assert.Equal(t, "", firstNonEmpty("", " "))
}

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("LEDGER_KAFKA_BROKERS", "env-broker:9092")

	withFlagArgs(t, nil, func() {
		cfg, err := readConfig()
		require.NoError(t, err)
		assert.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
		assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
		assert.Equal(t, kafka.TopicLedgerEvents, cfg.targetTopic)
		assert.Equal(t, defaultReplayLimit, cfg.limit)
		assert.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
		assert.False(t, cfg.execute)
		assert.Empty(t, cfg.eventType)
	})
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=ledger.dlq.archive",
		"-target-topic=ledger.replay",
		"-event-type= obligation.overdue ",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		require.NoError(t, err)
		assert.Len(t, cfg.brokers, 2)
		assert.Equal(t, "ledger.dlq.archive", cfg.sourceTopic)
		assert.Equal(t, "ledger.replay", cfg.targetTopic)
		assert.Equal(t, "obligation.overdue", cfg.eventType)
		assert.Equal(t, 10, cfg.limit)
		assert.True(t, cfg.execute)
		assert.True(t, cfg.fromNewest)
		assert.Equal(t, 3*time.Second, cfg.idleTimeout)
	})
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	t.Setenv("LEDGER_KAFKA_BROKERS", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no brokers", []string{"-brokers="}, "kafka brokers are required"},
		{"no source", []string{"-brokers=broker:9092", "-source-topic="}, "source-topic is required"},
		{"no target", []string{"-brokers=broker:9092", "-target-topic="}, "target-topic is required"},
		{"zero limit", []string{"-brokers=broker:9092", "-limit=0"}, "limit must be > 0"},
		{"zero idle", []string{"-brokers=broker:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFlagArgs(t, tt.args, func() {
				_, err := readConfig()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.want)
			})
		})
	}
}

func TestPublishReplay(t *testing.T) {
	require.Error(t, publishReplay(nil, replayMessage{}))

	producer := &stubReplayProducer{}
	require.NoError(t, publishReplay(producer, replayMessage{topic: "topic", key: "obl-1", value: []byte(`{"x":1}`)}))
	require.Len(t, producer.published, 1)
	assert.Equal(t, "topic", producer.published[0].topic)
	assert.Equal(t, "obl-1", producer.published[0].key)

	producer.publishErr = errors.New("send failed")
	require.Error(t, publishReplay(producer, replayMessage{topic: "topic", key: "obl-1", value: []byte(`{}`)}))
}

func newTestReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) *replayer {
	return &replayer{cfg: cfg, client: client, consumer: consumer, producer: producer}
}

func singlePartition(t *testing.T, values ...[]byte) (*stubOffsetClient, *stubPartitionConsumerSource) {
	t.Helper()
	messages := make([]*sarama.ConsumerMessage, 0, len(values))
	for i, value := range values {
		messages = append(messages, &sarama.ConsumerMessage{Partition: 0, Offset: int64(i), Value: value})
	}
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: int64(len(values)) + 1}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(messages)},
	}
	return client, consumer
}

func TestReplayPartition_DryRun(t *testing.T) {
	client, consumer := singlePartition(t, consumerDLQValue(t, overdueEvent("obl-1")))
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, idleTimeout: 20 * time.Millisecond}

	stats, err := newTestReplayer(cfg, client, consumer, nil).partition(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 1, replayed: 1}, stats)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(0), consumer.calls[0].offset)
}

func TestReplayPartition_Execute(t *testing.T) {
	client, consumer := singlePartition(t,
		consumerDLQValue(t, overdueEvent("obl-1")),
		outboxDLQValue(t, overdueEvent("obl-2")),
	)
	producer := &stubReplayProducer{}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, execute: true, idleTimeout: 20 * time.Millisecond}

	stats, err := newTestReplayer(cfg, client, consumer, producer).partition(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.replayed)
	require.Len(t, producer.published, 2)
	assert.Equal(t, "obl-1", producer.published[0].key)
	assert.Equal(t, "obl-2", producer.published[1].key)
}

func TestReplayPartition_EventTypeFilter(t *testing.T) {
	settled := overdueEvent("obl-2")
	settled.EventType = domain.EventObligationSettled
	settled.Status = domain.ObligationStatusSettled

	client, consumer := singlePartition(t,
		consumerDLQValue(t, overdueEvent("obl-1")),
		consumerDLQValue(t, settled),
	)
	producer := &stubReplayProducer{}
	cfg := config{
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicLedgerEvents,
		eventType:   string(domain.EventObligationSettled),
		execute:     true,
		idleTimeout: 20 * time.Millisecond,
	}

	stats, err := newTestReplayer(cfg, client, consumer, producer).partition(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
	require.Len(t, producer.published, 1)
	assert.Equal(t, "obl-2", producer.published[0].key)
}

func TestReplayPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 50}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(nil)},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, fromNewest: true, idleTimeout: 20 * time.Millisecond}

	_, err := newTestReplayer(cfg, client, consumer, nil).partition(context.Background(), 0, 5)
	require.NoError(t, err)
	require.Len(t, consumer.calls, 1)
	assert.Equal(t, int64(45), consumer.calls[0].offset)
}

func TestReplayPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, execute: true, idleTimeout: 20 * time.Millisecond}

	t.Run("offset error", func(t *testing.T) {
		client := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
		_, err := newTestReplayer(cfg, client, &stubPartitionConsumerSource{}, &stubReplayProducer{}).partition(context.Background(), 0, 1)
		require.Error(t, err)
	})

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	t.Run("consume error", func(t *testing.T) {
		consumer := &stubPartitionConsumerSource{consumeErr: errors.New("consume")}
		_, err := newTestReplayer(cfg, client, consumer, &stubReplayProducer{}).partition(context.Background(), 0, 1)
		require.Error(t, err)
	})

	t.Run("consumer error", func(t *testing.T) {
		pc := &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError, 1),
		}
		pc.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
		consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pc}}
		_, err := newTestReplayer(cfg, client, consumer, &stubReplayProducer{}).partition(context.Background(), 0, 1)
		require.Error(t, err)
		assert.True(t, pc.closed)
	})

	t.Run("corrupt payload is skipped", func(t *testing.T) {
		client, consumer := singlePartition(t, []byte(`{"id":"x","event_type":"obligation.created","payload":"not-an-object"}`))
		stats, err := newTestReplayer(cfg, client, consumer, &stubReplayProducer{}).partition(context.Background(), 0, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.skipped)
	})

	t.Run("publish error", func(t *testing.T) {
		client, consumer := singlePartition(t, consumerDLQValue(t, overdueEvent("obl-1")))
		producer := &stubReplayProducer{publishErr: errors.New("send fail")}
		_, err := newTestReplayer(cfg, client, consumer, producer).partition(context.Background(), 0, 1)
		require.Error(t, err)
	})
}

func TestReplayPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, idleTimeout: 10 * time.Millisecond}

	idle := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idle}}
	stats, err := newTestReplayer(cfg, client, consumer, nil).partition(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canceled := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceled}}
	_, err = newTestReplayer(cfg, client, consumer, nil).partition(ctx, 0, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReplayPartition_EmptyRange(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 7, newest: 7}}}
	consumer := &stubPartitionConsumerSource{}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, idleTimeout: 10 * time.Millisecond}

	stats, err := newTestReplayer(cfg, client, consumer, nil).partition(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.Empty(t, consumer.calls)
}

func TestRunReplay(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, limit: 1, idleTimeout: 20 * time.Millisecond}

	_, err := runReplay(context.Background(), cfg, nil, nil, nil)
	require.Error(t, err)

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 0, Value: consumerDLQValue(t, overdueEvent("obl-1"))}}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 2, Value: consumerDLQValue(t, overdueEvent("obl-2"))}}),
		},
	}

	stats, err := runReplay(context.Background(), cfg, client, consumer, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.processed)
	require.Len(t, consumer.calls, 1, "limit=1 stops after the first partition")
	assert.Equal(t, int32(0), consumer.calls[0].partition)

	executeCfg := cfg
	executeCfg.execute = true
	_, err = runReplay(context.Background(), executeCfg, client, consumer, nil)
	require.Error(t, err, "execute mode requires producer")

	_, err = runReplay(context.Background(), cfg, &stubOffsetClient{}, consumer, nil)
	require.NoError(t, err)

	_, err = runReplay(context.Background(), cfg, &stubOffsetClient{partitionsErr: errors.New("metadata")}, consumer, nil)
	require.Error(t, err)
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	t.Cleanup(func() { newReplayDependencies = oldDeps })

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicLedgerEvents, limit: 1, execute: true, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deps failed")

	client, consumer := singlePartition(t, outboxDLQValue(t, overdueEvent("obl-9")))
	producer := &stubReplayProducer{}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	require.NoError(t, run(context.Background(), cfg))
	assert.Len(t, producer.published, 1)
	assert.True(t, client.closed)
	assert.True(t, consumer.closed)
	assert.True(t, producer.closed)
}

func TestMain_SuccessWithStubbedDeps(t *testing.T) {
	oldDeps := newReplayDependencies
	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	t.Cleanup(func() {
		newReplayDependencies = oldDeps
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	})

	client, consumer := singlePartition(t, consumerDLQValue(t, overdueEvent("obl-1")))
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, nil, nil
	}

	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	main()
	assert.True(t, client.closed)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	require.Error(t, err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"dlq-reprocess"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	// errors остаётся открытым: закрытый канал выигрывал бы select у сообщений.
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}

type publishedMessage struct {
	topic string
	key   string
	value []byte
}

type stubReplayProducer struct {
	publishErr error
	published  []publishedMessage
	closed     bool
}

func (s *stubReplayProducer) PublishRaw(topic, key string, value []byte) error {
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published = append(s.published, publishedMessage{topic: topic, key: key, value: value})
	return nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
