package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notify-relay/internal/api"
	"github.com/tinywideclouds/go-notify-relay/internal/registry"
	"github.com/tinywideclouds/go-notify-relay/pkg/relay"
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, req relay.DeliveryRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}
func (m *mockDeliverer) Broadcast(ctx context.Context, event string, data any) error {
	return m.Called(ctx, event, data).Error(0)
}

var testLogger = zerolog.Nop()

func TestHealthHandler(t *testing.T) {
	apiHandler := api.NewAPI(new(mockDeliverer), registry.NewMemory(), testLogger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	apiHandler.HealthHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestConnectedUsersHandler(t *testing.T) {
	reg := registry.NewMemory()
	apiHandler := api.NewAPI(new(mockDeliverer), reg, testLogger)

	t.Run("empty registry", func(t *testing.T) {
		rr := httptest.NewRecorder()
		apiHandler.ConnectedUsersHandler(rr, httptest.NewRequest(http.MethodGet, "/connected-users", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"count":0,"users":[]}`, rr.Body.String())
	})

	t.Run("one registered user", func(t *testing.T) {
		_, err := reg.Set(context.Background(), "user-42", "conn-1")
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		apiHandler.ConnectedUsersHandler(rr, httptest.NewRequest(http.MethodGet, "/connected-users", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"count":1,"users":["user-42"]}`, rr.Body.String())
	})
}

func TestEmitNotificationHandler(t *testing.T) {
	newRequest := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/emit-notification", strings.NewReader(body))
	}

	t.Run("delivered to online user", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		apiHandler := api.NewAPI(deliverer, registry.NewMemory(), testLogger)

		deliverer.On("Deliver", mock.Anything, relay.DeliveryRequest{
			UserID:  "user-42",
			Payload: map[string]any{"title": "Hi"},
		}).Return(true, nil).Once()

		rr := httptest.NewRecorder()
		apiHandler.EmitNotificationHandler(rr, newRequest(`{"userId":"user-42","notification":{"title":"Hi"}}`))

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, true, body["success"])
		assert.Equal(t, true, body["delivered"])
		deliverer.AssertExpectations(t)
	})

	t.Run("offline user is still a 200", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		apiHandler := api.NewAPI(deliverer, registry.NewMemory(), testLogger)

		deliverer.On("Deliver", mock.Anything, mock.Anything).Return(false, nil).Once()

		rr := httptest.NewRecorder()
		apiHandler.EmitNotificationHandler(rr, newRequest(`{"userId":"user-42","notification":{"title":"Hi"}}`))

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["delivered"])
	})

	t.Run("missing fields yield 400", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		apiHandler := api.NewAPI(deliverer, registry.NewMemory(), testLogger)

		for _, body := range []string{
			`{}`,
			`{"userId":"user-42"}`,
			`{"notification":{"title":"Hi"}}`,
		} {
			rr := httptest.NewRecorder()
			apiHandler.EmitNotificationHandler(rr, newRequest(body))

			require.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", body)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, false, resp["success"])
			assert.Contains(t, resp["message"], "Missing required fields")
		}
		deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	})

	t.Run("invalid JSON yields 400", func(t *testing.T) {
		apiHandler := api.NewAPI(new(mockDeliverer), registry.NewMemory(), testLogger)
		rr := httptest.NewRecorder()
		apiHandler.EmitNotificationHandler(rr, newRequest(`not-json`))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("dispatch failure yields 500", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		apiHandler := api.NewAPI(deliverer, registry.NewMemory(), testLogger)

		deliverer.On("Deliver", mock.Anything, mock.Anything).
			Return(false, errors.New("transport emission failed")).Once()

		rr := httptest.NewRecorder()
		apiHandler.EmitNotificationHandler(rr, newRequest(`{"userId":"user-42","notification":{"title":"Hi"}}`))

		require.Equal(t, http.StatusInternalServerError, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "transport emission failed")
	})
}

func TestEmitHandler(t *testing.T) {
	newRequest := func(body string) *http.Request {
		return httptest.NewRequest(http.MethodPost, "/emit", strings.NewReader(body))
	}

	t.Run("broadcasts a named event", func(t *testing.T) {
		deliverer := new(mockDeliverer)
		apiHandler := api.NewAPI(deliverer, registry.NewMemory(), testLogger)

		deliverer.On("Broadcast", mock.Anything, "announcement", map[string]any{"msg": "hello"}).
			Return(nil).Once()

		rr := httptest.NewRecorder()
		apiHandler.EmitHandler(rr, newRequest(`{"event":"announcement","data":{"msg":"hello"}}`))

		require.Equal(t, http.StatusOK, rr.Code)
		deliverer.AssertExpectations(t)
	})

	t.Run("missing event yields 400", func(t *testing.T) {
		apiHandler := api.NewAPI(new(mockDeliverer), registry.NewMemory(), testLogger)
		rr := httptest.NewRecorder()
		apiHandler.EmitHandler(rr, newRequest(`{"data":{"msg":"hello"}}`))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
