package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/domain"
)

// EventHandler receives decoded run events
type EventHandler func(ctx context.Context, event domain.RunEvent) error

// Tail consumes run events from Kafka
type Tail struct {
	config        *config.KafkaConfig
	handler       EventHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewTail creates a new Kafka consumer for run events
func NewTail(cfg *config.KafkaConfig, fromOldest bool, handler EventHandler, logger *slog.Logger) (*Tail, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	if fromOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Tail{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming events
func (t *Tail) Start() error {
	t.logger.Info("starting event tail",
		"brokers", t.config.Brokers,
		"topic", t.config.Topic,
		"group_id", t.config.GroupID,
	)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			handler := &tailHandler{tail: t, ready: t.ready}

			if err := t.consumerGroup.Consume(t.ctx, []string{t.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				t.logger.Error("error from consumer", "error", err)
			}

			if t.ctx.Err() != nil {
				return
			}

			t.ready = make(chan bool)
		}
	}()

	<-t.ready
	t.logger.Info("event tail ready")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.ctx.Done():
				return
			case err, ok := <-t.consumerGroup.Errors():
				if !ok {
					return
				}
				t.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the tail
func (t *Tail) Stop() error {
	t.logger.Info("stopping event tail")
	t.cancel()
	t.wg.Wait()
	return t.consumerGroup.Close()
}

// tailHandler implements sarama.ConsumerGroupHandler
type tailHandler struct {
	tail  *Tail
	ready chan bool
}

func (h *tailHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *tailHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *tailHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.tail.handleMessage(session.Context(), message)
			session.MarkMessage(message, "")
		}
	}
}

// handleMessage decodes one message and hands it to the handler. Messages
// that do not decode are logged and skipped.
func (t *Tail) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	event, err := DecodeEvent(message.Value)
	if err != nil {
		t.logger.Warn("failed to decode event",
			"error", err,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return
	}

	if err := t.handler(ctx, event); err != nil {
		t.logger.Error("failed to handle event", "type", event.Type, "run_id", event.RunID, "error", err)
	}
}

// DecodeEvent decodes and validates a run event
func DecodeEvent(data []byte) (domain.RunEvent, error) {
	var event domain.RunEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.RunEvent{}, err
	}
	if event.Type == "" || event.RunID == "" {
		return domain.RunEvent{}, errors.New("event without type or run id")
	}
	return event, nil
}
