package reports

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	alarms "solar-dashboard/internal/alarms/domain"
	"solar-dashboard/internal/auth"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

type staticWindow struct {
	readings []telemetry.Reading
	err      error
}

func (s staticWindow) Window(_ context.Context, limit int) ([]telemetry.Reading, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && len(s.readings) > limit {
		return s.readings[len(s.readings)-limit:], nil
	}
	return s.readings, nil
}

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

var reportNow = time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

func sampleReadings() []telemetry.Reading {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []telemetry.Reading{
		{Timestamp: base, DeviceID: "esp32-01", Voltage: 12, Current: 0.5, Power: 100, LightRaw: 400},
		{Timestamp: base.Add(time.Hour), DeviceID: "esp32-01", Voltage: 13, Current: 1.5, Power: 200, LightRaw: 600},
	}
}

func newService(t *testing.T, readings []telemetry.Reading, sender Sender, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithSender(sender), WithNow(func() time.Time { return reportNow })}, opts...)
	svc, err := NewService(staticWindow{readings: readings}, opts...)
	require.NoError(t, err)
	return svc
}

func TestBuildReport(t *testing.T) {
	svc := newService(t, sampleReadings(), nil)
	report, err := svc.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.Count)
	assert.Equal(t, 12.5, report.Summary.Voltage.Avg)
	assert.Equal(t, 200.0, report.Summary.Power.Max)
	require.NotNil(t, report.Latest)
	assert.Equal(t, 200.0, report.Latest.Power)
	require.Len(t, report.DailyEnergy, 1)
	assert.Equal(t, 0.1, report.DailyEnergy[0].KWh)
	assert.Equal(t, 0.1, report.TotalKWh)
}

func TestBuildReportWindow(t *testing.T) {
	svc := newService(t, sampleReadings(), nil, WithSummaryWindow(1))
	report, err := svc.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Count)
	assert.Equal(t, 0.1, report.TotalKWh, "energy covers the whole log")
}

func TestSendReport(t *testing.T) {
	sender := &recordingSender{}
	svc := newService(t, sampleReadings(), sender)

	assert.ErrorIs(t, svc.Send(context.Background(), "  "), ErrMissingRecipient)

	require.NoError(t, svc.Send(context.Background(), "ops@example.com"))
	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
	assert.Equal(t, "Solar Dashboard Summary Report - 2024-03-02", msg.Subject)
	assert.Contains(t, msg.HTML, "Recent Data Summary (Last 2 readings)")
	assert.Contains(t, msg.HTML, "<td>Voltage (V)</td><td>12.50</td><td>12.00</td><td>13.00</td>")
	assert.Contains(t, msg.HTML, "<td>Light (Raw)</td><td>500</td>")
	assert.Contains(t, msg.Text, "Power (W): 150.00 / 100.00 / 200.00")

	sender.err = errors.New("smtp down")
	assert.Error(t, svc.Send(context.Background(), "ops@example.com"))
}

func TestRenderEmptyReport(t *testing.T) {
	html, err := RenderHTML(Report{GeneratedAt: reportNow})
	require.NoError(t, err)
	assert.Contains(t, html, "No live data available.")
	assert.Contains(t, html, "<td>Voltage (V)</td><td>N/A</td><td>N/A</td><td>N/A</td>")
	assert.NotContains(t, html, "Daily Energy")
}

func TestBuildPDF(t *testing.T) {
	svc := newService(t, sampleReadings(), nil)
	report, err := svc.Build(context.Background())
	require.NoError(t, err)
	data, err := BuildPDF(report)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestBuildXLSX(t *testing.T) {
	svc := newService(t, sampleReadings(), nil)
	report, err := svc.Build(context.Background())
	require.NoError(t, err)
	data, err := BuildXLSX(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	day, err := f.GetCellValue(EnergySheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", day)
	count, err := f.GetCellValue(SummarySheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "2", count)
}

func newRouter(t *testing.T, svc *Service) *mux.Router {
	t.Helper()
	h, err := NewHandler(svc, nil, nil)
	require.NoError(t, err)
	router := mux.NewRouter()
	h.Register(router)
	return router
}

func TestSendHandlerFallsBackToTokenEmail(t *testing.T) {
	sender := &recordingSender{}
	router := newRouter(t, newService(t, sampleReadings(), sender))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/send", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"ok":false,"error":"missing email"}`, resp.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/reports/send", strings.NewReader(`{}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), "viewer@example.com", auth.RoleOperator, "user-1"))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true,"sent":true}`, resp.Body.String())
	require.Len(t, sender.messages, 1)
	assert.Equal(t, []string{"viewer@example.com"}, sender.messages[0].To)
}

func TestExportHandlers(t *testing.T) {
	router := newRouter(t, newService(t, sampleReadings(), nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/telemetry.pdf", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="telemetry_report_2024-03-02.pdf"`, resp.Header().Get("Content-Disposition"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/telemetry.xlsx", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("PK")))

	failing, err := NewService(staticWindow{err: errors.New("disk")})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/telemetry.pdf", nil)
	resp = httptest.NewRecorder()
	newRouter(t, failing).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
