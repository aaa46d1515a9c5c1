package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcorg/internal/app/presence"
	"webcorg/internal/configs"
	"webcorg/internal/handler"
)

// fakeStorage satisfies storage.StorageService without talking to S3.
type fakeStorage struct {
	uploadedKeys []string
}

func (f *fakeStorage) PresignUpload(_ context.Context, key, _ string, _ int64, _ time.Duration) (string, error) {
	f.uploadedKeys = append(f.uploadedKeys, key)
	return "https://s3.example.com/upload/" + key, nil
}

func (f *fakeStorage) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.example.com/download/" + key, nil
}

func (f *fakeStorage) Delete(_ context.Context, _ string) error { return nil }

func avatarDeps(store *fakeStorage) *handler.AppDeps {
	deps := &handler.AppDeps{
		Broker: presence.NewBroker(),
		Config: &configs.AppConfig{Environment: "development"},
	}
	if store != nil {
		deps.StorageService = store
	}
	return deps
}

func TestHandlePresignAvatarURL(t *testing.T) {
	tests := []struct {
		name         string
		store        *fakeStorage
		body         string
		expectedCode float64
	}{
		{
			name:         "valid png upload",
			store:        &fakeStorage{},
			body:         `{"file_name":"me.png","mime_type":"image/png","file_size":1024}`,
			expectedCode: 0,
		},
		{
			name:         "storage not configured",
			store:        nil,
			body:         `{"file_name":"me.png","mime_type":"image/png","file_size":1024}`,
			expectedCode: 2105,
		},
		{
			name:         "file too large",
			store:        &fakeStorage{},
			body:         `{"file_name":"me.png","mime_type":"image/png","file_size":4194304}`,
			expectedCode: 2101,
		},
		{
			name:         "extension does not match mime type",
			store:        &fakeStorage{},
			body:         `{"file_name":"me.gif","mime_type":"image/png","file_size":1024}`,
			expectedCode: 2102,
		},
		{
			name:         "not an image",
			store:        &fakeStorage{},
			body:         `{"file_name":"me.exe","mime_type":"application/octet-stream","file_size":1024}`,
			expectedCode: 2102,
		},
		{
			name:         "invalid json",
			store:        &fakeStorage{},
			body:         `{"file_name":`,
			expectedCode: 1003,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.HandlePresignAvatarURL(avatarDeps(tt.store))

			req := httptest.NewRequest(http.MethodPost, "/api/avatar/presign", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedCode, body["code"])

			if tt.expectedCode == 0 {
				data := body["data"].(map[string]any)
				assert.Equal(t, "me.png", data["fileName"])

				fileKey := data["fileKey"].(string)
				assert.True(t, strings.HasPrefix(fileKey, "avatars/"))
				assert.True(t, strings.HasSuffix(fileKey, ".png"))
				assert.Equal(t, "https://s3.example.com/upload/"+fileKey, data["presignedUrl"])

				require.Len(t, tt.store.uploadedKeys, 1)
			}
		})
	}
}

func TestHandleAvatarDownloadURL(t *testing.T) {
	t.Run("redirects inside the avatar namespace", func(t *testing.T) {
		h := handler.HandleAvatarDownloadURL(avatarDeps(&fakeStorage{}))

		req := httptest.NewRequest(http.MethodGet, "/api/avatar?k=avatars/abc.png", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://s3.example.com/download/avatars/abc.png", w.Header().Get("Location"))
	})

	t.Run("rejects keys outside the avatar namespace", func(t *testing.T) {
		h := handler.HandleAvatarDownloadURL(avatarDeps(&fakeStorage{}))

		req := httptest.NewRequest(http.MethodGet, "/api/avatar?k=secrets/dump.sql", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, float64(2103), body["code"])
	})

	t.Run("rejects missing key", func(t *testing.T) {
		h := handler.HandleAvatarDownloadURL(avatarDeps(&fakeStorage{}))

		req := httptest.NewRequest(http.MethodGet, "/api/avatar", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, float64(1001), body["code"])
	})
}
