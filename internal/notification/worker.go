package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/metrics"
	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool sends a push to every subscriber of a vehicle when one of its charging sessions closes.
type WorkerPool struct {
	size    int
	jobs    chan string
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     logging.WithComponent("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// Serve runs the workers until ctx is done.
func (wp *WorkerPool) Serve(ctx context.Context) error {
	wp.Start(ctx)
	<-ctx.Done()
	return nil
}

func (wp *WorkerPool) String() string {
	return "notification-pool"
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug().Int("worker", id).Msg("worker started")
	for {
		select {
		case sessionID := <-wp.jobs:
			wp.log.Debug().Int("worker", id).Str("session_id", sessionID).Msg("processing session")
			wp.sendNotificationsForSession(ctx, sessionID)
		case <-ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("worker shutting down")
			return
		}
	}
}

// Dispatch queues a closed session. It never blocks the sync pass; when the queue is
// full the notification is dropped.
func (wp *WorkerPool) Dispatch(sessionID string) {
	select {
	case wp.jobs <- sessionID:
	default:
		metrics.PushNotifications.WithLabelValues("dropped").Inc()
		wp.log.Warn().Str("session_id", sessionID).Msg("notification queue full, dropping")
	}
}

func (wp *WorkerPool) sendNotificationsForSession(ctx context.Context, sessionID string) {
	sess, err := wp.store.GetSession(ctx, sessionID)
	if err != nil {
		wp.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load charging session")
		return
	}

	subscriptions, err := wp.store.SubscriptionsForVehicle(ctx, sess.VehicleID)
	if err != nil {
		wp.log.Error().Err(err).Str("vehicle_id", sess.VehicleID).Msg("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	wp.log.Info().Int("count", len(subscriptions)).Str("session_id", sessionID).Msg("sending notifications")
	message := Message(sess)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// Message renders the push text for a closed session.
func Message(sess *model.ChargingSession) string {
	label := sess.Vehicle.DisplayName
	if label == "" {
		label = sess.Vehicle.VIN
	}
	if label == "" {
		label = sess.VehicleID
	}

	verb := "complete"
	if sess.Status == model.SessionInterrupted {
		verb = "interrupted"
	}
	if sess.StartBatteryLevel == nil || sess.EndBatteryLevel == nil {
		return fmt.Sprintf("Charging %s on %s", verb, label)
	}
	return fmt.Sprintf("Charging %s on %s: %d%% → %d%%", verb, label, *sess.StartBatteryLevel, *sess.EndBatteryLevel)
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.PushNotifications.WithLabelValues("error").Inc()
		wp.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// Expired subscription
	if resp.StatusCode == http.StatusGone {
		metrics.PushNotifications.WithLabelValues("expired").Inc()
		wp.log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
		return
	}
	metrics.PushNotifications.WithLabelValues("sent").Inc()
}
