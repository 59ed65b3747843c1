package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError carries the server's business error code alongside the HTTP status.
type APIError struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// API is a client for the QuickChat REST surface. The zero HTTPClient falls
// back to http.DefaultClient; Token may be empty for signup/login and is set
// from their responses.
type API struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewAPI creates an API client for the given base URL, e.g. "http://localhost:8080".
func NewAPI(baseURL string) *API {
	return &API{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
	}
}

// jsonEnvelope mirrors the server's response envelope {code, message, data}.
type jsonEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do performs the request and decodes the envelope into out (may be nil).
// A non-zero envelope code is returned as *APIError.
func (a *API) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	httpClient := a.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	res, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	var env jsonEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}

	if env.Code != 0 {
		return &APIError{Code: env.Code, Message: env.Message, HTTPStatus: res.StatusCode}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}

	return nil
}

// AuthResult is the response of signup and login.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Signup creates an account and stores the issued token on the client.
func (a *API) Signup(ctx context.Context, username, password, fullName string) (*AuthResult, error) {
	var result AuthResult
	err := a.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": username,
		"password": password,
		"fullName": fullName,
	}, &result)
	if err != nil {
		return nil, err
	}

	a.Token = result.Token
	return &result, nil
}

// Login verifies credentials and stores the issued token on the client.
func (a *API) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var result AuthResult
	err := a.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &result)
	if err != nil {
		return nil, err
	}

	a.Token = result.Token
	return &result, nil
}

// AuthCheck validates the stored token and returns the current profile.
func (a *API) AuthCheck(ctx context.Context) (*User, error) {
	var result struct {
		User User `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/auth/check", nil, &result); err != nil {
		return nil, err
	}
	return &result.User, nil
}

// UpdateProfile updates the mutable profile fields.
func (a *API) UpdateProfile(ctx context.Context, fullName, bio, avatarURL string) (*User, error) {
	var result struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	}
	err := a.do(ctx, http.MethodPut, "/api/auth/update-profile", map[string]string{
		"fullName":  fullName,
		"bio":       bio,
		"avatarUrl": avatarURL,
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.Token != "" {
		a.Token = result.Token
	}
	return &result.User, nil
}

// UsersResult is the sidebar payload: every other user, the per-sender unseen
// counts and the online set.
type UsersResult struct {
	Users          []User         `json:"users"`
	UnseenMessages map[string]int `json:"unseenMessages"`
	OnlineUserIDs  []string       `json:"onlineUserIds"`
}

// ListUsers fetches the sidebar payload.
func (a *API) ListUsers(ctx context.Context) (*UsersResult, error) {
	var result UsersResult
	if err := a.do(ctx, http.MethodGet, "/api/messages/users", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConversation fetches the full history with the peer. The server marks
// every message from the peer as seen as a side effect.
func (a *API) GetConversation(ctx context.Context, peerID string) ([]Message, error) {
	var result struct {
		Messages []Message `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/"+peerID, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// SendMessage persists a new message to the receiver. Exactly one of
// text/imageURL must be set.
func (a *API) SendMessage(ctx context.Context, receiverID, text, imageURL string) (*Message, error) {
	var result struct {
		Message Message `json:"message"`
	}
	err := a.do(ctx, http.MethodPost, "/api/messages/send/"+receiverID, map[string]string{
		"text":     text,
		"imageUrl": imageURL,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result.Message, nil
}

// MarkSeen marks a single message as seen.
func (a *API) MarkSeen(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodPut, "/api/messages/mark/"+messageID, nil, nil)
}

// PresignResult is the response of PresignUpload.
type PresignResult struct {
	PresignedURL string `json:"presignedUrl"`
	FileKey      string `json:"fileKey"`
	FileName     string `json:"fileName"`
}

// PresignUpload requests a time-limited upload URL for an image.
func (a *API) PresignUpload(ctx context.Context, fileName, mimeType string, fileSize int64) (*PresignResult, error) {
	var result PresignResult
	err := a.do(ctx, http.MethodPost, "/api/files/presign-upload", map[string]any{
		"file_name": fileName,
		"mime_type": mimeType,
		"file_size": fileSize,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
