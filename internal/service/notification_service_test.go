package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/config"
	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/internal/events"
	"github.com/spec-kit/loyalty-scanner/internal/scanner"
)

func TestNotificationServicePublishes(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	var got []events.Event
	dispatcher.Subscribe(events.EventOperatorNotified, func(ctx context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})
	dispatcher.Subscribe(events.EventPayloadScanned, func(ctx context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})

	svc := NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{}, "m-1")
	svc.RegisterHandlers()

	var notifier scanner.Notifier = svc
	notifier.Notify(scanner.NotifySuccess, "Punch recorded.")
	svc.PayloadScanned("s-1", domain.PayloadBundleReference)

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	notified, ok := got[0].Payload.(events.OperatorNotifiedPayload)
	if !ok || notified.Kind != "success" || notified.Message != "Punch recorded." {
		t.Fatalf("unexpected payload %#v", got[0].Payload)
	}
	if got[0].ID == "" || got[0].MerchantID != "m-1" {
		t.Fatalf("unexpected event %+v", got[0])
	}
	scanned, ok := got[1].Payload.(events.PayloadScannedPayload)
	if !ok || scanned.SessionID != "s-1" || scanned.Kind != domain.PayloadBundleReference {
		t.Fatalf("unexpected payload %#v", got[1].Payload)
	}
}

func TestNotificationWebhook(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "accepted", status: http.StatusNoContent},
		{name: "rejected", status: http.StatusBadGateway, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received := make(chan events.Event, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var e events.Event
				if err := json.NewDecoder(r.Body).Decode(&e); err == nil {
					received <- e
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			dispatcher := events.NewInMemoryDispatcher()
			svc := NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{WebhookURL: srv.URL, WebhookTimeoutMS: 2000}, "m-1")
			svc.RegisterHandlers()

			err := dispatcher.Publish(context.Background(), events.Event{
				ID:         "e-1",
				Type:       events.EventOperatorNotified,
				MerchantID: "m-1",
				Payload:    events.OperatorNotifiedPayload{Kind: "error", Message: "network"},
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Publish() error = %v, wantErr %v", err, tt.wantErr)
			}
			select {
			case e := <-received:
				if e.ID != "e-1" || e.MerchantID != "m-1" {
					t.Fatalf("webhook got %+v", e)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("webhook not called")
			}
		})
	}
}
