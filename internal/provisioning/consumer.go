package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/farutech/tenantcore/internal/metrics"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

// Provisioner es lo que el consumer necesita del Orchestrator.
type Provisioner interface {
	Provision(ctx context.Context, ev InstanceProvisionedEvent) (*Result, error)
}

// Message abstrae *nats.Msg para poder testear el manejo de ack/nak/term.
type Message interface {
	Payload() []byte
	Metadata() (*nats.MsgMetadata, error)
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

type natsMessage struct{ *nats.Msg }

func (m natsMessage) Payload() []byte { return m.Data }

// Publisher publica en la DLQ; nats.JetStreamContext lo satisface.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ConsumerConfig parámetros del consumer durable.
type ConsumerConfig struct {
	Stream      string
	Subject     string
	DLQSubject  string
	Durable     string
	MaxDeliver  int
	AckWait     time.Duration
	FetchBatch  int
	FetchWait   time.Duration
	Concurrency int
	// NakDelay se multiplica por el número de entrega.
	NakDelay time.Duration
}

func (c *ConsumerConfig) defaults() {
	if c.Stream == "" {
		c.Stream = "TENANTS"
	}
	if c.Subject == "" {
		c.Subject = "tenant.instance.provisioned"
	}
	if c.DLQSubject == "" {
		c.DLQSubject = c.Subject + ".dlq"
	}
	if c.Durable == "" {
		c.Durable = "provisioning-orchestrator"
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.AckWait <= 0 {
		c.AckWait = 60 * time.Second
	}
	if c.FetchBatch <= 0 {
		c.FetchBatch = 10
	}
	if c.FetchWait <= 0 {
		c.FetchWait = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.NakDelay <= 0 {
		c.NakDelay = 5 * time.Second
	}
}

// Consumer procesa eventos de provisioning desde un consumer pull durable de
// JetStream. Eventos de tenants distintos pueden procesarse en paralelo; el
// mismo tenant queda serializado por el advisory lock del store.
type Consumer struct {
	js   nats.JetStreamContext
	dlq  Publisher
	prov Provisioner
	cfg  ConsumerConfig

	wg sync.WaitGroup
}

func NewConsumer(js nats.JetStreamContext, prov Provisioner, cfg ConsumerConfig) *Consumer {
	cfg.defaults()
	return &Consumer{js: js, dlq: js, prov: prov, cfg: cfg}
}

// EnsureStream crea el stream y el consumer durable si no existen.
func (c *Consumer) EnsureStream() error {
	if _, err := c.js.StreamInfo(c.cfg.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("stream info: %w", err)
		}
		if _, err := c.js.AddStream(&nats.StreamConfig{
			Name:        c.cfg.Stream,
			Description: "Tenant lifecycle events",
			Subjects:    []string{c.cfg.Subject, c.cfg.DLQSubject},
			Retention:   nats.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     nats.FileStorage,
		}); err != nil {
			return fmt.Errorf("add stream: %w", err)
		}
	}

	if _, err := c.js.ConsumerInfo(c.cfg.Stream, c.cfg.Durable); err != nil {
		if !errors.Is(err, nats.ErrConsumerNotFound) {
			return fmt.Errorf("consumer info: %w", err)
		}
		if _, err := c.js.AddConsumer(c.cfg.Stream, &nats.ConsumerConfig{
			Durable:       c.cfg.Durable,
			Description:   "Provisioning orchestrator",
			FilterSubject: c.cfg.Subject,
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       c.cfg.AckWait,
			MaxDeliver:    c.cfg.MaxDeliver,
			DeliverPolicy: nats.DeliverAllPolicy,
		}); err != nil {
			return fmt.Errorf("add consumer: %w", err)
		}
	}
	return nil
}

// Run hace fetch hasta que ctx se cancela; después deja de pedir mensajes y
// espera a los handlers en curso.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("consumer"), logger.Subject(c.cfg.Subject))

	sub, err := c.js.PullSubscribe(c.cfg.Subject, c.cfg.Durable, nats.Bind(c.cfg.Stream, c.cfg.Durable))
	if err != nil {
		return fmt.Errorf("pull subscribe: %w", err)
	}
	log.Info("provisioning consumer started",
		logger.String("durable", c.cfg.Durable),
		logger.Int("concurrency", c.cfg.Concurrency),
	)

	sem := make(chan struct{}, c.cfg.Concurrency)
	for ctx.Err() == nil {
		fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchWait)
		msgs, err := sub.Fetch(c.cfg.FetchBatch, nats.Context(fctx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			log.Warn("fetch failed", logger.Err(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// no procesado: vuelve por AckWait
			}
			if ctx.Err() != nil {
				break
			}
			c.wg.Add(1)
			go func(m *nats.Msg) {
				defer func() { <-sem; c.wg.Done() }()
				c.HandleMessage(ctx, natsMessage{m})
			}(m)
		}
	}

	log.Info("provisioning consumer stopping, waiting in-flight handlers")
	c.wg.Wait()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		log.Warn("unsubscribe failed", logger.Err(err))
	}
	return nil
}

// HandleMessage procesa un mensaje y decide ack, nak con delay o DLQ+term.
// Nunca entra en pánico ni propaga errores: un evento malo no frena el loop.
func (c *Consumer) HandleMessage(ctx context.Context, msg Message) {
	start := time.Now()
	attempt := uint64(1)
	if meta, err := msg.Metadata(); err == nil && meta != nil {
		attempt = meta.NumDelivered
	}
	log := logger.From(ctx).With(logger.Component("consumer"), logger.Attempt(attempt))

	ev, err := DecodeEvent(msg.Payload())
	if err != nil {
		log.Error("malformed provisioning event", logger.Err(err))
		c.deadLetter(ctx, msg.Payload(), err, attempt)
		if err := msg.Term(); err != nil {
			log.Warn("term failed", logger.Err(err))
		}
		metrics.ProvisioningEvents.WithLabelValues("malformed").Inc()
		return
	}
	log = log.With(logger.TenantID(ev.TenantID.String()))
	log.Info("provisioning event received")

	// Los handlers en curso terminan aunque se pida shutdown; AckWait los acota.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.AckWait)
	defer cancel()

	_, err = c.safeProvision(logger.ToContext(hctx, log), ev)
	if err == nil {
		if err := msg.Ack(); err != nil {
			log.Warn("ack failed", logger.Err(err))
		}
		metrics.ProvisioningEvents.WithLabelValues("success").Inc()
		log.Info("provisioning event done", logger.DurationMs(time.Since(start)))
		return
	}

	log = log.With(logger.Step(FailedStep(err)), logger.Err(err), logger.DurationMs(time.Since(start)))
	if errors.Is(err, ErrMalformedEvent) || attempt >= uint64(c.cfg.MaxDeliver) {
		log.Error("provisioning failed permanently, sending to DLQ")
		c.deadLetter(ctx, msg.Payload(), err, attempt)
		if err := msg.Term(); err != nil {
			log.Warn("term failed", logger.Err(err))
		}
		metrics.ProvisioningEvents.WithLabelValues("dead_letter").Inc()
		return
	}

	delay := time.Duration(attempt) * c.cfg.NakDelay
	log.Error("provisioning failed, will be redelivered", logger.Dur("nak_delay", delay))
	if err := msg.NakWithDelay(delay); err != nil {
		log.Warn("nak failed", logger.Err(err))
	}
	metrics.ProvisioningEvents.WithLabelValues("retry").Inc()
}

func (c *Consumer) safeProvision(ctx context.Context, ev InstanceProvisionedEvent) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provisioning panic: %v", r)
		}
	}()
	return c.prov.Provision(ctx, ev)
}

// deadLetter es el envelope que se publica en la DLQ.
type deadLetter struct {
	Payload   json.RawMessage `json:"payload,omitempty"`
	Raw       string          `json:"raw,omitempty"`
	Error     string          `json:"error"`
	Step      string          `json:"step,omitempty"`
	Attempt   uint64          `json:"attempt"`
	Timestamp time.Time       `json:"timestamp"`
}

func (c *Consumer) deadLetter(ctx context.Context, payload []byte, cause error, attempt uint64) {
	env := deadLetter{
		Error:     cause.Error(),
		Step:      FailedStep(cause),
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	}
	if json.Valid(payload) {
		env.Payload = payload
	} else {
		env.Raw = string(payload)
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.From(ctx).Error("marshal dead letter failed", logger.Err(err))
		return
	}
	if _, err := c.dlq.Publish(c.cfg.DLQSubject, data); err != nil {
		logger.From(ctx).Error("publish dead letter failed", logger.Err(err), logger.Subject(c.cfg.DLQSubject))
	}
}
