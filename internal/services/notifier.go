package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"golang.org/x/oauth2"
)

// Dispatcher delivers one event to the host.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.OutboxEvent) error
}

// LogDispatcher writes events to the log. It is used when no host is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, event models.OutboxEvent) error {
	slog.Info("chore event", "type", event.Type, "automation", event.Automation, "payload", string(event.Payload))
	return nil
}

type HomeAssistantOptions struct {
	BaseURL         string
	Token           string
	MaxTries        uint
	InitialInterval time.Duration
	Timeout         time.Duration
}

// HomeAssistantDispatcher fires events and triggers automations through the
// Home Assistant REST API.
type HomeAssistantDispatcher struct {
	baseURL         string
	client          *http.Client
	maxTries        uint
	initialInterval time.Duration
}

func NewHomeAssistantDispatcher(ctx context.Context, options HomeAssistantOptions) *HomeAssistantDispatcher {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: options.Token, TokenType: "Bearer"})
	client := oauth2.NewClient(ctx, source)
	client.Timeout = options.Timeout
	if client.Timeout == 0 {
		client.Timeout = 10 * time.Second
	}
	if options.MaxTries == 0 {
		options.MaxTries = 5
	}
	if options.InitialInterval == 0 {
		options.InitialInterval = 500 * time.Millisecond
	}
	return &HomeAssistantDispatcher{
		baseURL:         strings.TrimRight(options.BaseURL, "/"),
		client:          client,
		maxTries:        options.MaxTries,
		initialInterval: options.InitialInterval,
	}
}

// Dispatch fires the event, then triggers its automation if it names one.
// Both steps belong to one outbox row, so a failed trigger re-fires the
// event when the row is retried.
func (dispatcher *HomeAssistantDispatcher) Dispatch(ctx context.Context, event models.OutboxEvent) error {
	if err := dispatcher.post(ctx, "/api/events/"+string(event.Type), event.Payload); err != nil {
		return fmt.Errorf("firing %s: %w", event.Type, err)
	}
	if event.Automation == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"entity_id": event.Automation})
	if err != nil {
		return fmt.Errorf("encoding automation trigger: %w", err)
	}
	if err := dispatcher.post(ctx, "/api/services/automation/trigger", body); err != nil {
		return fmt.Errorf("triggering %s: %w", event.Automation, err)
	}
	return nil
}

// post retries transport errors, 429 and 5xx responses; any other non-2xx
// response fails immediately.
func (dispatcher *HomeAssistantDispatcher) post(ctx context.Context, path string, body []byte) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = dispatcher.initialInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, dispatcher.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		request.Header.Set("Content-Type", "application/json")

		response, err := dispatcher.client.Do(request)
		if err != nil {
			return struct{}{}, err
		}
		defer response.Body.Close()
		io.Copy(io.Discard, response.Body)

		switch {
		case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("home assistant returned %s", response.Status)
		case response.StatusCode >= 300:
			return struct{}{}, backoff.Permanent(fmt.Errorf("home assistant returned %s", response.Status))
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(dispatcher.maxTries))
	return err
}

// Notifier drains the outbox in order. Delivery failures never reach the
// engine; a failed event blocks the ones behind it until it succeeds or runs
// out of attempts.
type Notifier struct {
	outboxRepo repository.OutboxRepository
	dispatcher Dispatcher
	interval   time.Duration
	retention  time.Duration
	batchSize  int
	lastPruned time.Time
}

func NewNotifier(outboxRepo repository.OutboxRepository, dispatcher Dispatcher, interval time.Duration) *Notifier {
	return &Notifier{
		outboxRepo: outboxRepo,
		dispatcher: dispatcher,
		interval:   interval,
		retention:  7 * 24 * time.Hour,
		batchSize:  50,
	}
}

// Flush delivers pending events and returns how many were delivered.
func (notifier *Notifier) Flush(ctx context.Context) (int, error) {
	events, err := notifier.outboxRepo.FindUndelivered(ctx, notifier.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, event := range events {
		if err := notifier.dispatcher.Dispatch(ctx, event); err != nil {
			slog.Warn("delivering chore event", "id", event.ID, "type", event.Type, "attempt", event.Attempts+1, "error", err)
			if markErr := notifier.outboxRepo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				return delivered, markErr
			}
			return delivered, nil
		}
		if err := notifier.outboxRepo.MarkDelivered(ctx, event.ID, time.Now()); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// Run flushes on every wake signal and every interval until ctx is done.
func (notifier *Notifier) Run(ctx context.Context, wake <-chan struct{}) {
	ticker := time.NewTicker(notifier.interval)
	defer ticker.Stop()

	for {
		if _, err := notifier.Flush(ctx); err != nil {
			slog.Error("flushing chore events", "error", err)
		}
		notifier.prune(ctx)

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (notifier *Notifier) prune(ctx context.Context) {
	if time.Since(notifier.lastPruned) < 24*time.Hour {
		return
	}
	notifier.lastPruned = time.Now()
	if err := notifier.outboxRepo.DeleteDeliveredBefore(ctx, notifier.lastPruned.Add(-notifier.retention)); err != nil {
		slog.Error("pruning delivered events", "error", err)
	}
}
