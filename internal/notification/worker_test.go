package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func expectSession(mock sqlmock.Sqlmock, sessionID, vehicleID, displayName string) {
	mock.ExpectQuery(`SELECT \* FROM "charging_sessions" WHERE id = \$1 LIMIT \$2`).
		WithArgs(sessionID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vehicle_id", "started_at", "status", "start_battery_level", "end_battery_level"}).
			AddRow(sessionID, vehicleID, time.Now(), "completed", 50, 80))
	mock.ExpectQuery(`SELECT \* FROM "vehicles" WHERE "vehicles"."id" = \$1`).
		WithArgs(vehicleID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tesla_id", "display_name"}).
			AddRow(vehicleID, "1001", displayName))
}

func expectSubscriptions(mock sqlmock.Sqlmock, vehicleID string, sub model.PushSubscription) {
	mock.ExpectQuery(`SELECT .* FROM "push_subscriptions" JOIN subscription_vehicle_mapping svm .* WHERE svm\.vehicle_id = \$1`).
		WithArgs(vehicleID).
		WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
			AddRow(sub.Endpoint, sub.P256DH, sub.Auth, time.Now()))
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(db), &webpush.Options{})

	wp.Dispatch("session-1")

	select {
	case job := <-wp.jobs:
		assert.Equal(t, "session-1", job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(db), &webpush.Options{})

	for i := 0; i < cap(wp.jobs)+3; i++ {
		wp.Dispatch(fmt.Sprintf("session-%d", i))
	}
	assert.Len(t, wp.jobs, cap(wp.jobs))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(gormDB), &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		subscription := model.PushSubscription{
			Endpoint: "https://example.com/push",
			P256DH:   "test_p256dh",
			Auth:     "test_auth",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
				assert.Equal(t, "Charging complete on Blue: 50% → 80%", string(payload))
				wg.Done()
				return response(http.StatusCreated), nil
			},
		}

		expectSession(mock, "s-101", "v-1", "Blue")
		expectSubscriptions(mock, "v-1", subscription)

		wp.Dispatch("s-101")
		wg.Wait()
		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/expired",
			P256DH:   "test_p256dh_expired",
			Auth:     "test_auth_expired",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return response(http.StatusGone), nil
			},
		}

		expectSession(mock, "s-102", "v-2", "Red")
		expectSubscriptions(mock, "v-2", subscription)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM subscription_vehicle_mapping WHERE push_subscription_endpoint = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch("s-102")

		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})

	t.Run("skips sending when the session cannot be loaded", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("no notification expected")
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "charging_sessions" WHERE id = \$1 LIMIT \$2`).
			WithArgs("s-103", 1).
			WillReturnError(fmt.Errorf("connection reset"))

		wp.Dispatch("s-103")

		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
		// A short sleep to let the worker finish the job
		time.Sleep(50 * time.Millisecond)
	})
}

func TestMessage(t *testing.T) {
	start, end := 20, 64
	sess := &model.ChargingSession{
		VehicleID:         "v-1",
		Status:            model.SessionInterrupted,
		StartBatteryLevel: &start,
		EndBatteryLevel:   &end,
		Vehicle:           model.Vehicle{VIN: "5YJ3E1EA7KF000001"},
	}
	assert.Equal(t, "Charging interrupted on 5YJ3E1EA7KF000001: 20% → 64%", Message(sess))

	sess.Vehicle = model.Vehicle{}
	sess.EndBatteryLevel = nil
	sess.Status = model.SessionCompleted
	assert.Equal(t, "Charging complete on v-1", Message(sess))
}
