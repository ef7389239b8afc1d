package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-service/internal/config"
	"contact-service/internal/model"
	"contact-service/internal/submission"
)

type mockSubmitter struct {
	calls  []submission.Payload
	handle func(ctx context.Context, in submission.Payload) submission.Outcome
}

func (m *mockSubmitter) HandleSubmission(ctx context.Context, in submission.Payload) submission.Outcome {
	m.calls = append(m.calls, in)
	if m.handle != nil {
		return m.handle(ctx, in)
	}
	return submission.Outcome{Success: true, Message: submission.SuccessMessage, Stage: submission.Completed}
}

func newTestAPI(s Submitter) http.Handler {
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"https://portfolio.example"}
	return NewAPI(s, cfg, zerolog.Nop()).Router()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ContactResponse {
	t.Helper()
	var body ContactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestAPI(&mockSubmitter{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Server is running...", rec.Body.String())
}

func TestSubmitContact_JSON(t *testing.T) {
	sub := &mockSubmitter{}
	req := httptest.NewRequest(http.MethodPost, "/contact",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com","message":"Hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(sub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeResponse(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "Message received and email sent successfully", body.Message)

	require.Len(t, sub.calls, 1)
	assert.Equal(t, submission.Payload{Name: "Ada", Email: "ada@example.com", Message: "Hello"}, sub.calls[0])
}

func TestSubmitContact_FormEncoded(t *testing.T) {
	sub := &mockSubmitter{}
	form := url.Values{"name": {"Bob"}, "email": {"bob@example.com"}, "message": {"Hi there"}}
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	newTestAPI(sub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.calls, 1)
	assert.Equal(t, "Bob", sub.calls[0].Name)
	assert.Equal(t, "Hi there", sub.calls[0].Message)
}

func TestSubmitContact_EmptyBodyIsEmptyPayload(t *testing.T) {
	for _, ct := range []string{"application/json", "text/plain", ""} {
		sub := &mockSubmitter{}
		req := httptest.NewRequest(http.MethodPost, "/contact", nil)
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()

		newTestAPI(sub).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, ct)
		require.Len(t, sub.calls, 1, ct)
		assert.Equal(t, submission.Payload{}, sub.calls[0], ct)
	}
}

func TestSubmitContact_FailureIsGeneric(t *testing.T) {
	sub := &mockSubmitter{
		handle: func(ctx context.Context, in submission.Payload) submission.Outcome {
			return submission.Outcome{
				Success: false,
				Message: submission.FailureMessage,
				Stage:   submission.NotifyFailed,
				Err:     submission.ErrDelivery,
			}
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(sub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeResponse(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "Server error, please try again", body.Message)
	assert.NotContains(t, rec.Body.String(), "delivery")
}

func TestSubmitContact_MalformedJSON(t *testing.T) {
	sub := &mockSubmitter{}
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(sub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeResponse(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "Invalid request body", body.Message)
	assert.Empty(t, sub.calls, "pipeline must not run on an unreadable body")
}

func TestSubmitContact_BodyTooLarge(t *testing.T) {
	sub := &mockSubmitter{}
	big := `{"message":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(sub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, sub.calls)
}

func TestSubmitContact_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestAPI(&mockSubmitter{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contact", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/contact", nil)
	req.Header.Set("Origin", "https://portfolio.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()

	newTestAPI(&mockSubmitter{}).ServeHTTP(rec, req)

	assert.Equal(t, "https://portfolio.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORS_UnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(&mockSubmitter{}).ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestAPI(&mockSubmitter{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_BuildsIndependentRouters(t *testing.T) {
	a := NewAPI(&mockSubmitter{}, config.Default(), zerolog.Nop())
	assert.NotPanics(t, func() {
		a.Router()
		a.Router()
	})
}

func TestSubmitContact_JSONScalarsAreStringified(t *testing.T) {
	sub := &mockSubmitter{}
	req := httptest.NewRequest(http.MethodPost, "/contact",
		strings.NewReader(`{"name":123,"email":null,"message":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(sub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.calls, 1)
	assert.Equal(t, submission.Payload{Name: "123", Email: "", Message: "true"}, sub.calls[0])
}

func TestSubmitContact_JSONObjectFieldIsInvalid(t *testing.T) {
	sub := &mockSubmitter{}
	req := httptest.NewRequest(http.MethodPost, "/contact",
		strings.NewReader(`{"name":{"first":"Ada"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(sub).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sub.calls)
}

type cancellingStore struct {
	cancel context.CancelFunc
}

func (s *cancellingStore) Save(ctx context.Context, m *model.ContactMessage) error {
	s.cancel()
	m.ID = "0f8fad5b-d9cb-469f-a165-70867728950e"
	return nil
}

type ctxCheckingNotifier struct {
	sent int
}

func (n *ctxCheckingNotifier) Send(ctx context.Context, m *model.ContactMessage) error {
	n.sent++
	return ctx.Err()
}

func TestSubmitContact_ClientDisconnectDoesNotCancelPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &cancellingStore{cancel: cancel}
	notifier := &ctxCheckingNotifier{}
	pipeline := submission.NewPipeline(store, notifier, submission.Config{
		StoreTimeout:  time.Second,
		NotifyTimeout: time.Second,
	}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/contact",
		strings.NewReader(`{"name":"Ada"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestAPI(pipeline).ServeHTTP(rec, req)

	assert.Equal(t, 1, notifier.sent, "notification must still be sent")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
}

func TestNewAPI_WarnsOnOpenCORS(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	NewAPI(&mockSubmitter{}, config.Default(), logger)
	assert.Contains(t, buf.String(), "CORS allows every origin")

	buf.Reset()
	cfg := config.Default()
	cfg.Server.AllowedOrigins = []string{"https://portfolio.example"}
	NewAPI(&mockSubmitter{}, cfg, logger)
	assert.Empty(t, buf.String())
}
