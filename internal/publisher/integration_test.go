//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"crm_syncer/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) newPublisher(name string) (*RabbitMQ, Config) {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = pub.Close() })
	return pub, cfg
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_AcceptBatch() {
	pub, cfg := s.newPublisher("batch")

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []domain.ActionEvent{
		{
			HubID:             "hub-1",
			ObjectType:        domain.ObjectCompanies,
			ActionName:        "Company Created",
			ActionDate:        at,
			Identity:          "42",
			CompanyProperties: map[string]any{"company_id": "42", "company_domain": "acme.io"},
		},
		{
			HubID:             "hub-1",
			ObjectType:        domain.ObjectMeetings,
			ActionName:        "Meeting Updated",
			ActionDate:        at,
			Identity:          "jane@acme.io",
			MeetingProperties: map[string]any{"meeting_id": "m-1"},
		},
	}

	s.Require().NoError(pub.Accept(s.ctx, batch))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received BatchMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(2, received.Count)
	s.Require().Len(received.Events, 2)
	s.Equal("Company Created", received.Events[0].ActionName)
	s.Equal("acme.io", received.Events[0].CompanyProperties["company_domain"])
	s.Equal(0, received.Events[0].IncludeInAnalytics)
	s.True(at.Equal(received.Events[1].ActionDate))
	s.Equal("m-1", received.Events[1].MeetingProperties["meeting_id"])
	s.False(received.PublishedAt.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_EmptyBatchPublishesNothing() {
	pub, cfg := s.newPublisher("empty")

	s.Require().NoError(pub.Accept(s.ctx, nil))

	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()
	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(cfg.QueueName, true, false, false, false, nil)
	s.Require().NoError(err)
	s.Equal(0, q.Messages)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
