package e2e

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
)

func footageUpload(t *testing.T, ta *testApp, contentType string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="take1.mp4"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake video bytes"))
	w.Close()

	req, err := http.NewRequest(http.MethodPost, "/api/artifacts/footage", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestUploadFootage(t *testing.T) {
	ta := setupApp(t)

	resp := footageUpload(t, ta, "video/mp4", map[string]string{"episodeId": "ep-1", "sceneId": "scene-4"})
	assertStatus(t, resp, http.StatusCreated)

	result := parseJSON(t, resp)
	if result["key"] != "episodes/ep-1/scenes/scene-4/raw/take1.mp4" || result["bucket"] != "raw" {
		t.Errorf("unexpected reference %v", result)
	}
	if !ta.storage.has("raw", "episodes/ep-1/scenes/scene-4/raw/take1.mp4") {
		t.Error("footage not stored")
	}
}

func TestUploadFootage_Validation(t *testing.T) {
	ta := setupApp(t)

	resp := footageUpload(t, ta, "video/mp4", map[string]string{"episodeId": "ep-1"})
	assertStatus(t, resp, http.StatusBadRequest)

	resp = footageUpload(t, ta, "audio/wav", map[string]string{"episodeId": "ep-1", "sceneId": "s"})
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestPresignAndDelete(t *testing.T) {
	ta := setupApp(t)

	resp := mustRequest(t, ta.app, http.MethodPost, "/api/artifacts/presign", `{"bucket": "processed", "key": "episodes/ep-1/final/j.mp4"}`)
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["url"] == "" || result["expiresAt"] == nil {
		t.Errorf("expected url and expiry, got %v", result)
	}

	resp = mustRequest(t, ta.app, http.MethodPost, "/api/artifacts/presign", `{"key": "x"}`)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = mustRequest(t, ta.app, http.MethodDelete, "/api/artifacts?bucket=processed&key=episodes/ep-1/final/j.mp4", "")
	assertStatus(t, resp, http.StatusOK)
	if result := parseJSON(t, resp); result["deleted"] != true {
		t.Errorf("unexpected cleanup result %v", result)
	}

	resp = mustRequest(t, ta.app, http.MethodDelete, "/api/artifacts?bucket=processed", "")
	assertStatus(t, resp, http.StatusBadRequest)
}
