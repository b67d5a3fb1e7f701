package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nao1215/portalcapture/internal/model"
)

// ErrReplyChannelClosed is returned when the broker closes the reply
// consumer before an answer arrives.
var ErrReplyChannelClosed = errors.New("reply channel closed before an answer arrived")

// AMQPResolver publishes challenges to a durable queue and waits for the
// answer on an exclusive reply queue, matched by correlation ID.
type AMQPResolver struct {
	url     string
	queue   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAMQPResolver creates a resolver publishing to queue on the broker at url.
func NewAMQPResolver(url, queue string, timeout time.Duration, logger *slog.Logger) *AMQPResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPResolver{
		url:     url,
		queue:   queue,
		timeout: timeout,
		logger:  logger,
	}
}

// amqpTask is the message published for a challenge.
type amqpTask struct {
	CaptchaType  string `json:"captcha_type"`
	SessionToken string `json:"session_token"`
	CookieName   string `json:"cookie_name,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// amqpReply is the message a solver sends back.
type amqpReply struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

func encodeTask(challenge model.CaptchaChallenge) ([]byte, error) {
	return json.Marshal(amqpTask{
		CaptchaType:  CaptchaTypeImage,
		SessionToken: challenge.SessionToken,
		CookieName:   challenge.CookieName,
		ImageURL:     challenge.ImageURL,
	})
}

func decodeReply(body []byte) (model.CaptchaAnswer, error) {
	var reply amqpReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return model.CaptchaAnswer{}, fmt.Errorf("malformed reply: %w", err)
	}
	if reply.Error != "" {
		return model.CaptchaAnswer{}, fmt.Errorf("%w: %s", ErrTaskFailed, reply.Error)
	}
	return newAnswer(reply.Answer)
}

// Solve publishes the challenge and blocks until the matching reply arrives,
// the timeout expires or ctx is cancelled.
func (r *AMQPResolver) Solve(ctx context.Context, challenge model.CaptchaChallenge) (model.CaptchaAnswer, error) {
	if challenge.SessionToken == "" {
		return model.CaptchaAnswer{}, ErrNoToken
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := amqp.Dial(r.url)
	if err != nil {
		return model.CaptchaAnswer{}, fmt.Errorf("connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return model.CaptchaAnswer{}, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(r.queue, true, false, false, false, nil); err != nil {
		return model.CaptchaAnswer{}, fmt.Errorf("declare queue %s: %w", r.queue, err)
	}

	reply, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return model.CaptchaAnswer{}, fmt.Errorf("declare reply queue: %w", err)
	}

	deliveries, err := ch.Consume(reply.Name, "", true, true, false, false, nil)
	if err != nil {
		return model.CaptchaAnswer{}, fmt.Errorf("consume reply queue: %w", err)
	}

	body, err := encodeTask(challenge)
	if err != nil {
		return model.CaptchaAnswer{}, err
	}

	corrID := uuid.NewString()
	err = ch.PublishWithContext(ctx,
		"",      // exchange
		r.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: corrID,
			ReplyTo:       reply.Name,
			Expiration:    strconv.FormatInt(r.timeout.Milliseconds(), 10),
			Body:          body,
		})
	if err != nil {
		return model.CaptchaAnswer{}, fmt.Errorf("publish task: %w", err)
	}
	r.logger.Debug("captcha task published", "queue", r.queue, "correlation_id", corrID)

	for {
		select {
		case <-ctx.Done():
			return model.CaptchaAnswer{}, fmt.Errorf("waiting for reply: %w", ctx.Err())
		case d, ok := <-deliveries:
			if !ok {
				return model.CaptchaAnswer{}, ErrReplyChannelClosed
			}
			if d.CorrelationId != corrID {
				continue
			}
			return decodeReply(d.Body)
		}
	}
}
