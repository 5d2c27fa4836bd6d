package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"imagine-chat/internal/app"
	"imagine-chat/internal/auth"
	"imagine-chat/internal/repository/db"
	chatService "imagine-chat/internal/service/chat"
	conversationService "imagine-chat/internal/service/conversation"
	"imagine-chat/internal/service/mutation"
	"imagine-chat/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	t      *testing.T
	db     *testutil.MemoryStore
	router http.Handler
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	database := testutil.NewMemoryStore()
	config := app.NewConfig(database, testutil.NewMockConfig(), testutil.Replying("Paris."), testutil.ImageAt("https://img.example/cat.png"))
	t.Cleanup(config.Close)

	return &apiFixture{t: t, db: database, router: NewHandlers(config).Router()}
}

func (f *apiFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) register(email string) (string, *db.Profile) {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/register", "", RegisterRequest{Email: email, DisplayName: "Ada", Password: "secret1"})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(f.t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Token, resp.Profile
}

func (f *apiFixture) createConversation(token, title string) db.Conversation {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/conversations", token, CreateConversationRequest{Title: title})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	var conv db.Conversation
	require.NoError(f.t, json.NewDecoder(rec.Body).Decode(&conv))
	return conv
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "imagine_chat_http_requests_total")
}

func TestRegisterLoginFlow(t *testing.T) {
	f := newAPI(t)

	_, profile := f.register("ada@example.com")
	assert.Equal(t, "ada@example.com", profile.Email)

	rec := f.do(http.MethodPost, "/api/register", "", RegisterRequest{Email: "ada@example.com", DisplayName: "Ada", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/register", "", RegisterRequest{Email: "bad", DisplayName: "Ada", Password: "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid email format", decodeError(t, rec).Error)

	rec = f.do(http.MethodPost, "/api/login", "", LoginRequest{Email: "ada@example.com", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/login", "", LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, profile.ID, resp.Profile.ID)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPI(t)

	for _, path := range []string{"/api/profile", "/api/conversations", "/api/gallery"} {
		rec := f.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestConversationLifecycle(t *testing.T) {
	f := newAPI(t)
	token, _ := f.register("ada@example.com")

	conv := f.createConversation(token, "")
	assert.Equal(t, "New Conversation", conv.Title)

	rec := f.do(http.MethodPatch, "/api/conversations/"+conv.ID, token, UpdateConversationRequest{Action: "rename", Title: "Trip"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/conversations?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list conversationService.ListResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Trip", list.Data[0].Title)
	assert.Equal(t, 10, list.PageSize)

	rec = f.do(http.MethodPatch, "/api/conversations/"+conv.ID, token, UpdateConversationRequest{Action: "archive"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/api/conversations/"+conv.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/conversations", token, nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Empty(t, list.Data)

	rec = f.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOtherOwnersConversationIsNotFound(t *testing.T) {
	f := newAPI(t)
	ada, _ := f.register("ada@example.com")
	eve, _ := f.register("eve@example.com")
	conv := f.createConversation(ada, "Private")

	rec := f.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", eve, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", eve, SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodDelete, "/api/conversations/"+conv.ID, eve, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, f.db.Calls("SoftDeleteConversation"))
}

func TestSendMessageAndPaginate(t *testing.T) {
	f := newAPI(t)
	token, _ := f.register("ada@example.com")
	conv := f.createConversation(token, "Geo")

	rec := f.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, SendMessageRequest{Content: "Explain what the capital of France is"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent chatService.SendResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sent))
	assert.Equal(t, db.RoleUser, sent.UserMessage.Role)
	require.NotNil(t, sent.AIMessage)
	assert.Equal(t, "Paris.", sent.AIMessage.Content)

	for i := 0; i < 3; i++ {
		rec = f.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, SendMessageRequest{Content: fmt.Sprintf("note %d", i), Role: db.RoleAssistant})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=3", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first MessagesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&first))
	require.Len(t, first.Messages, 3)
	assert.Equal(t, "note 2", first.Messages[0].Content)
	assert.True(t, first.HasMore)
	require.NotNil(t, first.NextCursor)

	rec = f.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=3&cursor="+*first.NextCursor, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second MessagesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))
	require.Len(t, second.Messages, 2)
	assert.Equal(t, "Explain what the capital of France is", second.Messages[1].Content)
	assert.False(t, second.HasMore)
	assert.Nil(t, second.NextCursor)

	rec = f.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages?cursor=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", token, SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateImageAndGallery(t *testing.T) {
	f := newAPI(t)
	token, _ := f.register("ada@example.com")
	conv := f.createConversation(token, "Art")

	rec := f.do(http.MethodGet, "/api/gallery", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gallery GalleryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&gallery))
	assert.Empty(t, gallery.Images)

	rec = f.do(http.MethodPost, "/api/images/generate", token, GenerateImageRequest{Prompt: "a cat in a hat", ConversationID: conv.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result chatService.SendResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.NotNil(t, result.AIMessage)
	assert.Equal(t, db.MessageTypeImage, result.AIMessage.MessageType)
	require.NotNil(t, result.Image)

	rec = f.do(http.MethodGet, "/api/gallery", token, nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&gallery))
	require.Len(t, gallery.Images, 1)
	assert.Equal(t, "https://img.example/cat.png", gallery.Images[0].ImageURL)

	rec = f.do(http.MethodPost, "/api/images/generate", token, GenerateImageRequest{Prompt: "no conversation"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "conversationId is required", decodeError(t, rec).Error)
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPI(t)
	token, profile := f.register("ada@example.com")
	f.createConversation(token, "Soon gone")

	name := "Ada Lovelace"
	rec := f.do(http.MethodPatch, "/api/profile", token, UpdateProfileRequest{DisplayName: &name, Preferences: json.RawMessage(`{"theme":"dark"}`)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got db.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "Ada Lovelace", got.DisplayName)
	assert.Empty(t, got.PasswordHash)

	bad := "not a url"
	rec = f.do(http.MethodPatch, "/api/profile", token, UpdateProfileRequest{AvatarURL: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, err := f.db.GetProfile(t.Context(), profile.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestPreflight(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodOptions, "/api/conversations/abc/messages", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PATCH"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{mutation.Validation(errors.New("bad")), http.StatusBadRequest},
		{mutation.Unauthorized(db.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", db.ErrNotFound), http.StatusNotFound},
		{db.ErrInvalidCursor, http.StatusBadRequest},
		{db.ErrConflict, http.StatusConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{&mutation.Error{Kind: mutation.KindRemote, Op: "send_message", Err: errors.New("reset")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}
