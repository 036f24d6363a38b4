package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alarmapp "solar-dashboard/internal/alarms/application"
	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/alarms/infrastructure/memory"
	telemetryevents "solar-dashboard/internal/telemetry/application/events"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

type recordingSender struct {
	messages []alarms.Message
	err      error
}

func (r *recordingSender) Send(_ context.Context, msg alarms.Message) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

type fixture struct {
	router  *mux.Router
	service *alarmapp.Service
	sender  *recordingSender
	broker  *SSEBroker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	rules, err := memory.NewRuleRepository([]alarms.AlarmRule{{
		ID: "low-voltage", Name: "Low voltage", Field: alarms.FieldVoltage,
		Operator: alarms.OperatorLess, Threshold: 11, Hysteresis: 0.3, Severity: "medium", Enabled: true,
	}})
	require.NoError(t, err)
	broker := NewSSEBroker()
	service, err := alarmapp.NewService(rules, memory.NewAlarmRepository(), alarmapp.WithNotifier(broker))
	require.NoError(t, err)
	sender := &recordingSender{}
	alerts, err := alarmapp.NewAlertService(sender)
	require.NoError(t, err)
	h, err := NewHandler(service, alerts, broker, nil, nil)
	require.NoError(t, err)
	router := mux.NewRouter()
	h.Register(router)
	return fixture{router: router, service: service, sender: sender, broker: broker}
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func (f fixture) raise(t *testing.T) string {
	t.Helper()
	evt := telemetryevents.TelemetryReceived{
		DeviceID: "esp32-01",
		Reading:  telemetry.Reading{Timestamp: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), DeviceID: "esp32-01", Voltage: 10},
	}
	require.NoError(t, f.service.HandleTelemetryReceived(context.Background(), evt))
	list, err := f.service.ListAlarms(context.Background(), alarms.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0].ID
}

func TestManualAlert(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodPost, "/api/v1/alerts", `{"type":"low_battery","threshold":11}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"ok":false,"error":"missing voltage"}`, resp.Body.String())

	resp = f.do(http.MethodPost, "/api/v1/alerts", `{"type":"low_battery","voltage":"10.9","device_id":"esp32-01"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true,"sent":true}`, resp.Body.String())
	require.Len(t, f.sender.messages, 1)
	assert.Equal(t, "Solar Alert: low_battery - 10.9 V", f.sender.messages[0].Subject)

	resp = f.do(http.MethodPost, "/api/v1/alerts", `{"type":"low_battery","voltage":10.8,"device_id":"esp32-01"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true,"note":"cooldown active"}`, resp.Body.String())

	f.sender.err = errors.New("smtp down")
	resp = f.do(http.MethodPost, "/api/v1/alerts", `{"type":"other","voltage":10.8}`)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	resp = f.do(http.MethodPost, "/api/v1/alerts", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAlarmListAckClear(t *testing.T) {
	f := newFixture(t)
	id := f.raise(t)

	resp := f.do(http.MethodGet, "/api/v1/alarms?status=active", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		OK     bool           `json:"ok"`
		Alarms []alarms.Alarm `json:"alarms"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list.Alarms, 1)
	assert.Equal(t, id, list.Alarms[0].ID)

	resp = f.do(http.MethodGet, "/api/v1/alarms?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(http.MethodPost, "/api/v1/alarms/"+id+"/ack", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var alarm alarms.Alarm
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &alarm))
	assert.Equal(t, alarms.StatusAcknowledged, alarm.Status)

	resp = f.do(http.MethodPost, "/api/v1/alarms/"+id+"/clear", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &alarm))
	assert.Equal(t, alarms.StatusCleared, alarm.Status)

	resp = f.do(http.MethodGet, "/api/v1/alarms/"+id, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(http.MethodPost, "/api/v1/alarms/missing/ack", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = f.do(http.MethodPost, "/api/v1/alarms/"+id+"/delete", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAlarmStream(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/alarms/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ready\n", line)

	require.Eventually(t, func() bool { return f.broker.Clients() == 1 }, time.Second, 10*time.Millisecond)
	f.raise(t)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {\"type\"") {
			break
		}
	}
	var event alarmapp.AlarmEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
	assert.Equal(t, alarms.EventActive, event.Type)
	assert.Equal(t, "low-voltage", event.Alarm.RuleID)
}
