// PROPRIETARY AND CONFIDENTIAL
//
// Unauthorized copying of this file via any medium is strictly prohibited.
//
// Copyright (c) 2022-2023 Snowplow Analytics Ltd. All rights reserved.

package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// --- Test WebhookSender

type TestWebhookSender struct {
	onDo func(b *http.Request) (*http.Response, error)
}

func (s *TestWebhookSender) Do(b *http.Request) (*http.Response, error) {
	return s.onDo(b)
}

// eventCapture records decoded webhook events from the sender under a lock
type eventCapture struct {
	mu     sync.Mutex
	events []WebhookEvent
}

func (ec *eventCapture) add(req *http.Request) error {
	var event WebhookEvent
	if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
		return err
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.events = append(ec.events, event)
	return nil
}

func (ec *eventCapture) snapshot() []WebhookEvent {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]WebhookEvent, len(ec.events))
	copy(out, ec.events)
	return out
}

// --- Tests

// TestWebhookMonitoring_Heartbeats tests that heartbeats are sent on boot and on the interval
func TestWebhookMonitoring_Heartbeats(t *testing.T) {
	assert := assert.New(t)

	capture := &eventCapture{}
	onDo := func(b *http.Request) (*http.Response, error) {
		assert.Equal("POST", b.Method)
		assert.Equal("https://test.webhook.com", b.URL.String())
		assert.Equal("application/json", b.Header.Get("Content-Type"))
		assert.Nil(capture.add(b))
		return nil, nil
	}

	sender := TestWebhookSender{onDo: onDo}

	monitoring := NewWebhookMonitoring(
		"testAppName",
		"0.0.0",
		&sender,
		"https://test.webhook.com",
		map[string]string{"pipeline": "test"},
		1*time.Second,
		nil,
	)
	assert.NotNil(monitoring)
	monitoring.Start()

	// Boot heartbeat plus two interval ticks
	time.Sleep(2200 * time.Millisecond)
	monitoring.Stop()

	events := capture.snapshot()
	assert.Equal(3, len(events))
	for _, event := range events {
		assert.Equal("iglu:com.snowplowanalytics.monitoring.loader/heartbeat/jsonschema/1-0-0", event.Schema)
		assert.Equal("testAppName", event.Data.AppName)
		assert.Equal("0.0.0", event.Data.AppVersion)
		assert.Equal(map[string]string{"pipeline": "test"}, event.Data.Tags)
		assert.Equal("", event.Data.Message)
	}
}

// TestWebhookMonitoring_Alerts tests alerting on setup errors and recovery back to heartbeats
func TestWebhookMonitoring_Alerts(t *testing.T) {
	assert := assert.New(t)

	capture := &eventCapture{}
	onDo := func(b *http.Request) (*http.Response, error) {
		assert.Nil(capture.add(b))
		return nil, nil
	}

	sender := TestWebhookSender{onDo: onDo}
	alertChan := make(chan error)

	// An interval long enough that only the boot heartbeat fires on its own
	monitoring := NewWebhookMonitoring(
		"testAppName",
		"0.0.0",
		&sender,
		"https://test.webhook.com",
		map[string]string{},
		1*time.Hour,
		alertChan,
	)
	assert.NotNil(monitoring)
	monitoring.Start()

	// First setup error alerts immediately
	alertChan <- errors.New("setup failure one")
	time.Sleep(200 * time.Millisecond)

	events := capture.snapshot()
	assert.Equal(2, len(events))
	assert.Equal("iglu:com.snowplowanalytics.monitoring.loader/alert/jsonschema/1-0-0", events[1].Schema)
	assert.Equal("setup failure one", events[1].Data.Message)

	// A subsequent error while unhealthy is held for the next interval
	alertChan <- errors.New("setup failure two")
	time.Sleep(200 * time.Millisecond)

	events = capture.snapshot()
	assert.Equal(2, len(events))

	// Recovery resumes heartbeats without sending anything by itself
	alertChan <- nil
	time.Sleep(200 * time.Millisecond)
	monitoring.Stop()

	events = capture.snapshot()
	assert.Equal(2, len(events))
}
