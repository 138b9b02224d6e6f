package persona

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	"github.com/zhouzirui/spirit/backend/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/spirit/backend/internal/service/chat"
)

func setup(t *testing.T) (*chi.Mux, *chatservice.Conversation, *aitest.Provider) {
	t.Helper()
	provider := &aitest.Provider{Reply: "네, 알겠어요"}
	chatSvc := chatservice.NewService(chatservice.Options{Provider: provider, Defaults: persona.Defaults()})
	conv, err := chatSvc.Create(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	New(chatSvc, persona.Seed()).RegisterRoutes(r)
	return r, conv, provider
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func avatarRequest(t *testing.T, path, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="avatar"; filename="avatar.bin"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestListPresets(t *testing.T) {
	r, _, _ := setup(t)

	resp := serve(r, httptest.NewRequest(http.MethodGet, "/personas", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "spirit", gjson.GetBytes(resp.Body.Bytes(), "0.id").String())
	assert.Len(t, gjson.ParseBytes(resp.Body.Bytes()).Array(), len(persona.Seed()))
}

func TestUpdatePersonaClearsTranscript(t *testing.T) {
	r, conv, provider := setup(t)
	_, err := conv.Submit(context.Background(), "안녕")
	require.NoError(t, err)
	require.Len(t, conv.Transcript(), 2)

	req := httptest.NewRequest(http.MethodPut, "/conversations/"+conv.ID()+"/persona", strings.NewReader(`{"title":"선배"}`))
	resp := serve(r, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	body := gjson.ParseBytes(resp.Body.Bytes())
	assert.True(t, body.Get("changed").Bool())
	assert.Equal(t, "선배", body.Get("persona.title").String())
	assert.Equal(t, persona.DefaultTone, body.Get("persona.tone").String())
	assert.Empty(t, conv.Transcript())
	assert.False(t, body.Get("warning").Exists())

	// 修改后立即用新的称号重建会话
	assert.True(t, conv.Snapshot().SessionActive)
	require.Len(t, provider.Instructions, 2)
	assert.Contains(t, provider.Instructions[1], "선배")

	_, err = conv.Submit(context.Background(), "다시 안녕")
	require.NoError(t, err)
	assert.Len(t, conv.Transcript(), 2)
	assert.Len(t, provider.Instructions, 2)
}

func TestUpdatePersonaSeedsWelcomeBeforeNextInput(t *testing.T) {
	provider := &aitest.Provider{Reply: "네, 선배!"}
	chatSvc := chatservice.NewService(chatservice.Options{Provider: provider, SeedWelcome: true, Defaults: persona.Defaults()})
	conv, err := chatSvc.Create(context.Background())
	require.NoError(t, err)
	r := chi.NewRouter()
	New(chatSvc, persona.Seed()).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPut, "/conversations/"+conv.ID()+"/persona", strings.NewReader(`{"title":"선배"}`))
	require.Equal(t, http.StatusOK, serve(r, req).Code)

	transcript := conv.Transcript()
	require.Len(t, transcript, 1)
	assert.Contains(t, transcript[0].Content, "선배")

	before := len(conv.Transcript())
	_, err = conv.Submit(context.Background(), "안녕")
	require.NoError(t, err)
	assert.Equal(t, before+2, len(conv.Transcript()))
}

func TestUpdatePersonaReportsSessionFailureAsWarning(t *testing.T) {
	r, conv, provider := setup(t)
	provider.CreateErr = errors.New("dial tcp: i/o timeout")

	req := httptest.NewRequest(http.MethodPut, "/conversations/"+conv.ID()+"/persona", strings.NewReader(`{"tone":"차분하게"}`))
	resp := serve(r, req)
	require.Equal(t, http.StatusOK, resp.Code)

	body := gjson.ParseBytes(resp.Body.Bytes())
	assert.True(t, body.Get("changed").Bool())
	assert.Equal(t, "session_init_failed", body.Get("warning.code").String())
	assert.False(t, conv.Snapshot().SessionActive)
}

func TestUpdatePersonaSameValuesIsNoop(t *testing.T) {
	r, conv, _ := setup(t)

	req := httptest.NewRequest(http.MethodPut, "/conversations/"+conv.ID()+"/persona",
		strings.NewReader(`{"title":"`+persona.DefaultTitle+`"}`))
	resp := serve(r, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, gjson.GetBytes(resp.Body.Bytes(), "changed").Bool())
}

func TestUpdatePersonaWithPreset(t *testing.T) {
	r, conv, _ := setup(t)

	req := httptest.NewRequest(http.MethodPut, "/conversations/"+conv.ID()+"/persona", strings.NewReader(`{"presetId":"calm-friend"}`))
	resp := serve(r, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "친구", conv.Persona().Title)
	assert.Equal(t, "calm-friend", conv.Voice())
}

func TestUpdatePersonaRejectsEmptyTitle(t *testing.T) {
	r, conv, _ := setup(t)

	req := httptest.NewRequest(http.MethodPut, "/conversations/"+conv.ID()+"/persona", strings.NewReader(`{"title":"  "}`))
	resp := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "title_required", gjson.GetBytes(resp.Body.Bytes(), "code").String())
	assert.Equal(t, persona.DefaultTitle, conv.Persona().Title)
}

func TestGetPersonaNotFound(t *testing.T) {
	r, _, _ := setup(t)

	resp := serve(r, httptest.NewRequest(http.MethodGet, "/conversations/missing/persona", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUploadAvatar(t *testing.T) {
	r, conv, _ := setup(t)
	png := []byte("\x89PNG\r\n\x1a\nfake")

	resp := serve(r, avatarRequest(t, "/conversations/"+conv.ID()+"/avatar", "image/png", png))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	assert.True(t, gjson.GetBytes(resp.Body.Bytes(), "changed").Bool())
	avatar := conv.Persona().Avatar
	assert.True(t, avatar.IsUploaded())
	assert.Equal(t, "image/png", avatar.MIMEType())
	assert.Equal(t, png, avatar.Bytes())

	resp = serve(r, httptest.NewRequest(http.MethodDelete, "/conversations/"+conv.ID()+"/avatar", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, conv.Persona().Avatar.IsUploaded())
}

func TestUploadAvatarUnsupportedType(t *testing.T) {
	r, conv, _ := setup(t)

	resp := serve(r, avatarRequest(t, "/conversations/"+conv.ID()+"/avatar", "image/bmp", []byte("BM")))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.Code)
	assert.Equal(t, "unsupported_image_type", gjson.GetBytes(resp.Body.Bytes(), "code").String())
	assert.False(t, conv.Persona().Avatar.IsUploaded())
}

func TestUploadAvatarMissingFile(t *testing.T) {
	r, conv, _ := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID()+"/avatar", strings.NewReader("plain"))
	resp := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
