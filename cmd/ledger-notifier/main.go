package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ledger/internal/service/directory"
	"github.com/vladislavdragonenkov/ledger/internal/service/notify"
	"github.com/vladislavdragonenkov/ledger/internal/version"
)

const (
	defaultGroupID    = "ledger-notifier"
	defaultMaxRetries = 3
)

type config struct {
	brokers        []string
	groupID        string
	topic          string
	maxRetries     int
	counterparties string
	logLevel       string
}

// eventConsumer — жизненный цикл kafka.Consumer.
type eventConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

// newConsumer собирает consumer событий леджера с DLQ; подменяется в тестах.
var newConsumer = func(cfg config, handler kafka.MessageHandler) (eventConsumer, func() error, error) {
	dlq, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		return nil, nil, fmt.Errorf("create dlq producer: %w", err)
	}
	consumer, err := kafka.NewConsumerWithDLQ(cfg.brokers, cfg.groupID, []string{cfg.topic}, handler, dlq, cfg.maxRetries)
	if err != nil {
		_ = dlq.Close()
		return nil, nil, err
	}
	return consumer, dlq.Close, nil
}

func main() {
	cfg, err := readConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level, err := log.ParseLevel(cfg.logLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Current("ledger-notifier").Fields()).WithFields(log.Fields{
		"topic": cfg.topic,
		"group": cfg.groupID,
	}).Info("запускаем ledger-notifier")

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("ledger-notifier завершился с ошибкой")
	}
	log.Info("ledger-notifier остановлен")
}

func readConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
	)
	fs.StringVar(&brokersRaw, "brokers", getenv("LEDGER_KAFKA_BROKERS"), "Kafka brokers, comma-separated")
	fs.StringVar(&cfg.groupID, "group", defaultGroupID, "consumer group id")
	fs.StringVar(&cfg.topic, "topic", kafka.TopicLedgerEvents, "ledger events topic")
	fs.IntVar(&cfg.maxRetries, "max-retries", defaultMaxRetries, "handler attempts before the message goes to DLQ")
	fs.StringVar(&cfg.counterparties, "counterparties", getenv("LEDGER_COUNTERPARTIES"), "counterparty directory: ref=Display Name,ref2")
	fs.StringVar(&cfg.logLevel, "log-level", firstNonEmpty(getenv("LEDGER_LOG_LEVEL"), "info"), "log level")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	for _, broker := range strings.Split(brokersRaw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or LEDGER_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.groupID) == "":
		return config{}, errors.New("group is required")
	case strings.TrimSpace(cfg.topic) == "":
		return config{}, errors.New("topic is required")
	case cfg.maxRetries <= 0:
		return config{}, errors.New("max-retries must be > 0")
	}
	return cfg, nil
}

// run слушает топик событий до отмены ctx и рассылает уведомления контрагентам.
func run(ctx context.Context, cfg config) error {
	entries, err := directory.ParseEntries(cfg.counterparties)
	if err != nil {
		return fmt.Errorf("parse counterparties: %w", err)
	}
	if len(entries) == 0 {
		log.Warn("counterparty directory is empty, all notifications will be dropped")
	}

	logger := log.WithField("component", "ledger-notifier")
	dispatcher := notify.NewDispatcher(
		directory.NewStaticDirectory(entries...),
		notify.NewLogNotifier(logger.WithField("channel", "email")),
		logger,
	)

	consumer, closeDLQ, err := newConsumer(cfg, kafka.LedgerEventHandler(dispatcher.Handle))
	if err != nil {
		return err
	}
	defer func() {
		if closeDLQ == nil {
			return
		}
		if err := closeDLQ(); err != nil {
			logger.WithError(err).Warn("failed to close dlq producer")
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	<-ctx.Done()

	if err := consumer.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
