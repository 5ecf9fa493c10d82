package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/videotube/internal/logger"
	"github.com/nkiryanov/videotube/internal/media"
	"github.com/nkiryanov/videotube/internal/media/local"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
	"github.com/nkiryanov/videotube/internal/repository/memory"
	"github.com/nkiryanov/videotube/internal/service/auth"
	"github.com/nkiryanov/videotube/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/videotube/internal/service/user"
)

const mediaBaseURL = "http://media.test/media"

type failingUploader struct{}

func (failingUploader) Upload(_ context.Context, localPath string) (string, error) {
	_ = os.Remove(localPath)
	return "", errors.New("s3 is down")
}

type testServer struct {
	URL       string
	Users     repository.UserRepo
	Auth      *auth.AuthService
	UploadDir string
	MediaDir  string
}

// Run production router over in-memory storage and local media store
func newTestServer(t *testing.T, cfg Config, uploader media.Uploader) *testServer {
	t.Helper()

	users := memory.NewStorage()

	tokens, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
	}, users.User())
	require.NoError(t, err)

	authService, err := auth.NewService(auth.Config{}, tokens, users.User())
	require.NoError(t, err)

	mediaDir := t.TempDir()
	if uploader == nil {
		uploader, err = local.New(mediaDir, mediaBaseURL)
		require.NoError(t, err)
	}
	userService := user.NewService(nil, users.User(), uploader)

	if cfg.UploadDir == "" {
		cfg.UploadDir = t.TempDir()
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitRPS, cfg.RateLimitBurst = 1000, 1000
	}

	srv := httptest.NewServer(NewRouter(cfg, authService, userService, users, logger.NewNoOpLogger()))
	t.Cleanup(srv.Close)

	return &testServer{
		URL:       srv.URL,
		Users:     users.User(),
		Auth:      authService,
		UploadDir: cfg.UploadDir,
		MediaDir:  mediaDir,
	}
}

// Build multipart body. Files are filled with fake image bytes
func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (io.Reader, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, filename := range files {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("\x89PNG fake image"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	return body, mw.FormDataContentType()
}

type response struct {
	*http.Response
	Body map[string]any
}

func (r response) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (r response) Data() map[string]any {
	data, _ := r.Body["data"].(map[string]any)
	return data
}

func doRequest(t *testing.T, method string, url string, body io.Reader, contentType string, prepare ...func(*http.Request)) response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, fn := range prepare {
		fn(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	res := response{Response: resp}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoErrorf(t, json.Unmarshal(raw, &res.Body), "body: %s", string(raw))
	}
	return res
}

func postJSON(t *testing.T, url string, data string, prepare ...func(*http.Request)) response {
	return doRequest(t, http.MethodPost, url, strings.NewReader(data), "application/json", prepare...)
}

func withPair(s *testServer, pair models.TokenPair) func(*http.Request) {
	return func(r *http.Request) { s.Auth.SetTokenPairToRequest(r, pair) }
}

func registerUser(t *testing.T, s *testServer, username string, email string, password string) response {
	t.Helper()

	body, ct := multipartBody(t,
		map[string]string{"fullname": "Nikita K", "email": email, "username": username, "password": password},
		map[string]string{"avatar": "me.png"},
	)
	return doRequest(t, http.MethodPost, s.URL+"/api/v1/users/register", body, ct)
}

// Register user and login, returns tokens from login response
func loginUser(t *testing.T, s *testServer) (models.TokenPair, response) {
	t.Helper()

	res := registerUser(t, s, "nkiryanov", "nk@example.com", "StrongEnoughPassword")
	require.Equal(t, http.StatusCreated, res.StatusCode, res.Body)

	res = postJSON(t, s.URL+"/api/v1/users/login", `{"username": "nkiryanov", "password": "StrongEnoughPassword"}`)
	require.Equal(t, http.StatusOK, res.StatusCode, res.Body)

	return models.TokenPair{
		Access:  models.IssuedToken{Value: res.Data()["accessToken"].(string)},
		Refresh: models.IssuedToken{Value: res.Data()["refreshToken"].(string)},
	}, res
}

func Test_Register(t *testing.T) {
	t.Parallel()

	t.Run("register ok", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)
		body, ct := multipartBody(t,
			map[string]string{"fullname": " Nikita K ", "email": "nk@example.com", "username": "NKiryanov", "password": "StrongEnoughPassword"},
			map[string]string{"avatar": "me.PNG", "coverImage": "cover.jpg"},
		)

		res := doRequest(t, http.MethodPost, s.URL+"/api/v1/users/register", body, ct)

		require.Equal(t, http.StatusCreated, res.StatusCode, res.Body)
		require.EqualValues(t, http.StatusCreated, res.Body["status"])
		require.Equal(t, "User registered successfully", res.Body["message"])

		data := res.Data()
		require.NotEmpty(t, data["_id"])
		require.Equal(t, "nkiryanov", data["username"], "username stored lower-cased")
		require.Equal(t, "nk@example.com", data["email"])
		require.Equal(t, "Nikita K", data["fullname"])
		require.True(t, strings.HasPrefix(data["avatar"].(string), mediaBaseURL+"/"), "avatar must be hosted url")
		require.True(t, strings.HasSuffix(data["avatar"].(string), ".png"))
		require.True(t, strings.HasPrefix(data["coverImage"].(string), mediaBaseURL+"/"))
		require.NotContains(t, data, "password")
		require.NotContains(t, data, "refreshToken")

		hosted, err := os.ReadDir(s.MediaDir)
		require.NoError(t, err)
		require.Len(t, hosted, 2, "avatar and cover image must be hosted")

		leftovers, err := os.ReadDir(s.UploadDir)
		require.NoError(t, err)
		require.Empty(t, leftovers, "temporary upload files must be removed")

		stored, err := s.Users.FindUserByLogin(t.Context(), "nkiryanov", "")
		require.NoError(t, err)
		require.NotEqual(t, "StrongEnoughPassword", stored.PasswordHash, "password must be hashed")
		require.Empty(t, stored.RefreshToken, "register does not login")
	})

	t.Run("cover image optional", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		res := registerUser(t, s, "nkiryanov", "nk@example.com", "pwd")

		require.Equal(t, http.StatusCreated, res.StatusCode, res.Body)
		require.Equal(t, "", res.Data()["coverImage"])
	})

	t.Run("duplicate username or email", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)
		res := registerUser(t, s, "nkiryanov", "nk@example.com", "pwd")
		require.Equal(t, http.StatusCreated, res.StatusCode, res.Body)

		for _, tc := range []struct{ username, email string }{
			{"NKIRYANOV", "other@example.com"},
			{"other", "nk@example.com"},
			{"other", "NK@Example.com"},
		} {
			res := registerUser(t, s, tc.username, tc.email, "pwd")

			require.Equal(t, http.StatusConflict, res.StatusCode, res.Body)
			require.Equal(t, "User with email or username already exists", res.Body["message"])
		}

		hosted, err := os.ReadDir(s.MediaDir)
		require.NoError(t, err)
		require.Len(t, hosted, 1, "nothing uploaded for rejected registrations")
	})

	t.Run("blank field", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		body, ct := multipartBody(t,
			map[string]string{"fullname": "Nikita K", "email": "  ", "username": "nkiryanov", "password": "pwd"},
			map[string]string{"avatar": "me.png"},
		)
		res := doRequest(t, http.MethodPost, s.URL+"/api/v1/users/register", body, ct)

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "validation_failed", res.Body["error"])
		require.Equal(t, map[string]any{"email": "This field is required"}, res.Body["fields"])
	})

	t.Run("invalid email", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		res := registerUser(t, s, "nkiryanov", "not-an-email", "pwd")

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, map[string]any{"email": "Invalid email"}, res.Body["fields"])
	})

	t.Run("avatar missing", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		body, ct := multipartBody(t,
			map[string]string{"fullname": "Nikita K", "email": "nk@example.com", "username": "nkiryanov", "password": "pwd"},
			nil,
		)
		res := doRequest(t, http.MethodPost, s.URL+"/api/v1/users/register", body, ct)

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "Avatar file is required", res.Body["message"])

		_, err := s.Users.FindUserByLogin(t.Context(), "nkiryanov", "")
		require.Error(t, err, "user must not be created")
	})

	t.Run("avatar upload failed", func(t *testing.T) {
		s := newTestServer(t, Config{}, failingUploader{})

		res := registerUser(t, s, "nkiryanov", "nk@example.com", "pwd")

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "Avatar file is required", res.Body["message"])

		leftovers, err := os.ReadDir(s.UploadDir)
		require.NoError(t, err)
		require.Empty(t, leftovers)
	})

	t.Run("not multipart", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		res := postJSON(t, s.URL+"/api/v1/users/register", `{"username": "nkiryanov"}`)

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "Failed to parse multipart form", res.Body["message"])
	})
}

func Test_Login(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, nil)
	res := registerUser(t, s, "nkiryanov", "nk@example.com", "StrongEnoughPassword")
	require.Equal(t, http.StatusCreated, res.StatusCode, res.Body)

	t.Run("login ok", func(t *testing.T) {
		for _, body := range []string{
			`{"username": "nkiryanov", "password": "StrongEnoughPassword"}`,
			`{"username": "NKiryanov", "password": "StrongEnoughPassword"}`,
			`{"email": "nk@example.com", "password": "StrongEnoughPassword"}`,
		} {
			res := postJSON(t, s.URL+"/api/v1/users/login", body)

			require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
			require.Equal(t, "User logged in successfully", res.Body["message"])

			data := res.Data()
			require.NotEmpty(t, data["accessToken"])
			require.NotEmpty(t, data["refreshToken"])

			u := data["user"].(map[string]any)
			require.Equal(t, "nkiryanov", u["username"])
			require.NotContains(t, u, "password")
			require.NotContains(t, u, "refreshToken")

			for name, value := range map[string]any{"accessToken": data["accessToken"], "refreshToken": data["refreshToken"]} {
				c := res.Cookie(name)
				require.NotNil(t, c, "cookie %s must be set", name)
				require.Equal(t, value, c.Value)
				require.True(t, c.HttpOnly)
				require.True(t, c.Secure)
				require.Equal(t, http.SameSiteStrictMode, c.SameSite)
				require.Equal(t, "/", c.Path)
			}
			require.InDelta(t, (15 * time.Minute).Seconds(), res.Cookie("accessToken").MaxAge, 2)
			require.InDelta(t, (240 * time.Hour).Seconds(), res.Cookie("refreshToken").MaxAge, 2)
		}
	})

	t.Run("email in any case", func(t *testing.T) {
		res := postJSON(t, s.URL+"/api/v1/users/login", `{"email": " NK@Example.COM ", "password": "StrongEnoughPassword"}`)

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
		require.Equal(t, "nk@example.com", res.Data()["user"].(map[string]any)["email"])
	})

	t.Run("wrong password", func(t *testing.T) {
		res := postJSON(t, s.URL+"/api/v1/users/login", `{"username": "nkiryanov", "password": "WrongPassword"}`)

		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Invalid user credentials", res.Body["message"])
		require.Empty(t, res.Cookies(), "no cookies on failed login")
	})

	t.Run("unknown user looks the same as wrong password", func(t *testing.T) {
		res := postJSON(t, s.URL+"/api/v1/users/login", `{"username": "ghost", "password": "StrongEnoughPassword"}`)

		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Invalid user credentials", res.Body["message"])
		require.Empty(t, res.Cookies())
	})

	t.Run("no identifiers", func(t *testing.T) {
		res := postJSON(t, s.URL+"/api/v1/users/login", `{"password": "StrongEnoughPassword"}`)

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "validation_failed", res.Body["error"])
	})

	t.Run("blank identifiers", func(t *testing.T) {
		res := postJSON(t, s.URL+"/api/v1/users/login", `{"username": "  ", "email": "\t", "password": "StrongEnoughPassword"}`)

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "validation_failed", res.Body["error"])
	})

	t.Run("broken json", func(t *testing.T) {
		res := postJSON(t, s.URL+"/api/v1/users/login", `{"username": `)

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "decoding_failed", res.Body["error"])
	})
}

func Test_Guard(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, nil)
	pair, login := loginUser(t, s)

	t.Run("bearer token", func(t *testing.T) {
		res := doRequest(t, http.MethodGet, s.URL+"/api/v1/users/me", nil, "", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+pair.Access.Value)
		})

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
		require.Equal(t, "nkiryanov", res.Data()["username"])
		require.NotContains(t, res.Data(), "password")
		require.NotContains(t, res.Data(), "refreshToken")
	})

	t.Run("access cookie", func(t *testing.T) {
		res := doRequest(t, http.MethodGet, s.URL+"/api/v1/users/me", nil, "", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "accessToken", Value: login.Cookie("accessToken").Value})
		})

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
	})

	t.Run("no token", func(t *testing.T) {
		res := doRequest(t, http.MethodGet, s.URL+"/api/v1/users/me", nil, "")

		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Unauthorized request", res.Body["message"])
	})

	t.Run("garbage token", func(t *testing.T) {
		res := doRequest(t, http.MethodGet, s.URL+"/api/v1/users/me", nil, "", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not-a-jwt")
		})

		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Invalid access token", res.Body["message"])
	})

	t.Run("refresh token is not access token", func(t *testing.T) {
		res := doRequest(t, http.MethodGet, s.URL+"/api/v1/users/me", nil, "", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+pair.Refresh.Value)
		})

		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Invalid access token", res.Body["message"])
	})
}

func Test_Refresh(t *testing.T) {
	t.Parallel()

	refresh := func(t *testing.T, s *testServer, token string) response {
		return doRequest(t, http.MethodPost, s.URL+"/api/v1/users/refresh", nil, "", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "refreshToken", Value: token})
		})
	}

	t.Run("rotation", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)
		first, _ := loginUser(t, s)

		res := refresh(t, s, first.Refresh.Value)

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
		require.Equal(t, "Access token refreshed", res.Body["message"])
		second := res.Data()
		require.NotEqual(t, first.Access.Value, second["accessToken"])
		require.NotEqual(t, first.Refresh.Value, second["refreshToken"])
		require.Equal(t, second["refreshToken"], res.Cookie("refreshToken").Value)
		require.Equal(t, second["accessToken"], res.Cookie("accessToken").Value)

		stored, err := s.Users.FindUserByLogin(t.Context(), "nkiryanov", "")
		require.NoError(t, err)
		require.Equal(t, second["refreshToken"], stored.RefreshToken, "only the new refresh token is live")

		// Old one can't be used anymore
		res = refresh(t, s, first.Refresh.Value)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Refresh token is expired or used", res.Body["message"])

		// New one still works
		res = refresh(t, s, second["refreshToken"].(string))
		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
	})

	t.Run("token in body", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)
		pair, _ := loginUser(t, s)

		res := postJSON(t, s.URL+"/api/v1/users/refresh", `{"refreshToken": "`+pair.Refresh.Value+`"}`)

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
	})

	t.Run("missing token", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		res := doRequest(t, http.MethodPost, s.URL+"/api/v1/users/refresh", nil, "")

		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Unauthorized request", res.Body["message"])
	})

	t.Run("access token is not refresh token", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)
		pair, _ := loginUser(t, s)

		res := refresh(t, s, pair.Access.Value)

		require.Equal(t, http.StatusUnauthorized, res.StatusCode, res.Body)
		require.Equal(t, "Invalid refresh token", res.Body["message"])
	})
}

func Test_Logout(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, nil)
	pair, _ := loginUser(t, s)

	res := doRequest(t, http.MethodPost, s.URL+"/api/v1/users/logout", nil, "", withPair(s, pair))

	require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
	require.Equal(t, map[string]any{}, res.Body["data"])
	for _, name := range []string{"accessToken", "refreshToken"} {
		c := res.Cookie(name)
		require.NotNil(t, c, "cookie %s must be expired", name)
		require.Empty(t, c.Value)
		require.Negative(t, c.MaxAge)
	}

	stored, err := s.Users.FindUserByLogin(t.Context(), "nkiryanov", "")
	require.NoError(t, err)
	require.Empty(t, stored.RefreshToken)

	res = postJSON(t, s.URL+"/api/v1/users/refresh", `{"refreshToken": "`+pair.Refresh.Value+`"}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, "refresh after logout must fail")

	res = doRequest(t, http.MethodPost, s.URL+"/api/v1/users/logout", nil, "")
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, "logout is guarded")
}

func Test_ChangePassword(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, nil)
	pair, _ := loginUser(t, s)
	url := s.URL + "/api/v1/users/change-password"

	t.Run("wrong old password", func(t *testing.T) {
		res := postJSON(t, url, `{"oldPassword": "nope", "newPassword": "NewPassword"}`, withPair(s, pair))

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "Invalid old password", res.Body["message"])
	})

	t.Run("new password required", func(t *testing.T) {
		res := postJSON(t, url, `{"oldPassword": "StrongEnoughPassword"}`, withPair(s, pair))

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, map[string]any{"newPassword": "This field is required"}, res.Body["fields"])
	})

	t.Run("changed", func(t *testing.T) {
		res := postJSON(t, url, `{"oldPassword": "StrongEnoughPassword", "newPassword": "NewPassword"}`, withPair(s, pair))

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
		require.Equal(t, "Password changed successfully", res.Body["message"])

		res = postJSON(t, s.URL+"/api/v1/users/login", `{"username": "nkiryanov", "password": "StrongEnoughPassword"}`)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "old password must not work")

		res = postJSON(t, s.URL+"/api/v1/users/login", `{"username": "nkiryanov", "password": "NewPassword"}`)
		assert.Equal(t, http.StatusOK, res.StatusCode, "new password must work")
	})
}

func Test_UpdateAccount(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, nil)
	pair, _ := loginUser(t, s)
	res := registerUser(t, s, "other", "other@example.com", "pwd")
	require.Equal(t, http.StatusCreated, res.StatusCode, res.Body)

	patch := func(t *testing.T, body string) response {
		return doRequest(t, http.MethodPatch, s.URL+"/api/v1/users/account", strings.NewReader(body), "application/json", withPair(s, pair))
	}

	t.Run("updated", func(t *testing.T) {
		res := patch(t, `{"fullname": "Nikita Kiryanov", "email": "new@example.com"}`)

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
		require.Equal(t, "Nikita Kiryanov", res.Data()["fullname"])
		require.Equal(t, "new@example.com", res.Data()["email"])
		require.NotContains(t, res.Data(), "password")
	})

	t.Run("email taken", func(t *testing.T) {
		res := patch(t, `{"fullname": "Nikita", "email": "other@example.com"}`)

		require.Equal(t, http.StatusConflict, res.StatusCode, res.Body)
		require.Equal(t, "Email is already taken", res.Body["message"])
	})

	t.Run("fields required", func(t *testing.T) {
		res := patch(t, `{"fullname": "Nikita"}`)

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, map[string]any{"email": "This field is required"}, res.Body["fields"])
	})
}

func Test_UpdateAvatar(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{}, nil)
	pair, login := loginUser(t, s)
	oldAvatar := login.Data()["user"].(map[string]any)["avatar"]

	t.Run("updated", func(t *testing.T) {
		body, ct := multipartBody(t, nil, map[string]string{"avatar": "new.jpg"})

		res := doRequest(t, http.MethodPatch, s.URL+"/api/v1/users/avatar", body, ct, withPair(s, pair))

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
		require.Equal(t, "Avatar image updated successfully", res.Body["message"])
		require.NotEqual(t, oldAvatar, res.Data()["avatar"])
		require.True(t, strings.HasSuffix(res.Data()["avatar"].(string), ".jpg"))

		hosted, err := os.ReadDir(s.MediaDir)
		require.NoError(t, err)
		require.Len(t, hosted, 2, "previous avatar is kept")
	})

	t.Run("file missing", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"note": "no file"}, nil)

		res := doRequest(t, http.MethodPatch, s.URL+"/api/v1/users/avatar", body, ct, withPair(s, pair))

		require.Equal(t, http.StatusBadRequest, res.StatusCode, res.Body)
		require.Equal(t, "Avatar file is missing", res.Body["message"])
	})
}

func Test_Router(t *testing.T) {
	t.Parallel()

	t.Run("health", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		res := doRequest(t, http.MethodGet, s.URL+"/healthz", nil, "")

		require.Equal(t, http.StatusOK, res.StatusCode, res.Body)
		require.NotEmpty(t, res.Header.Get("X-Request-Id"))
	})

	t.Run("not found", func(t *testing.T) {
		s := newTestServer(t, Config{}, nil)

		res := doRequest(t, http.MethodGet, s.URL+"/api/v1/videos", nil, "")

		require.Equal(t, http.StatusNotFound, res.StatusCode)
		require.Equal(t, "service_error", res.Body["error"])
	})

	t.Run("metrics", func(t *testing.T) {
		s := newTestServer(t, Config{Metrics: prometheus.NewRegistry()}, nil)
		_ = doRequest(t, http.MethodGet, s.URL+"/healthz", nil, "")

		req, err := http.NewRequest(http.MethodGet, s.URL+"/metrics", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, string(body), `videotube_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	})

	t.Run("rate limited", func(t *testing.T) {
		s := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 1}, nil)

		res := postJSON(t, s.URL+"/api/v1/users/login", `{"username": "ghost", "password": "pwd"}`)
		require.Equal(t, http.StatusUnauthorized, res.StatusCode)

		res = postJSON(t, s.URL+"/api/v1/users/login", `{"username": "ghost", "password": "pwd"}`)
		require.Equal(t, http.StatusTooManyRequests, res.StatusCode)

		res = doRequest(t, http.MethodGet, s.URL+"/api/v1/users/me", nil, "")
		require.Equal(t, http.StatusUnauthorized, res.StatusCode, "guarded routes are not limited")
	})

	t.Run("local media served", func(t *testing.T) {
		mediaDir := t.TempDir()
		require.NoError(t, os.WriteFile(mediaDir+"/a.png", []byte("img"), 0o644))
		s := newTestServer(t, Config{MediaDir: mediaDir}, nil)

		resp, err := http.Get(s.URL + "/media/a.png")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "img", string(body))
	})

	t.Run("local media not listed", func(t *testing.T) {
		mediaDir := t.TempDir()
		require.NoError(t, os.WriteFile(mediaDir+"/a.png", []byte("img"), 0o644))
		require.NoError(t, os.Mkdir(mediaDir+"/nested", 0o755))
		s := newTestServer(t, Config{MediaDir: mediaDir}, nil)

		for _, path := range []string{"/media/", "/media/nested/", "/media/nested"} {
			resp, err := http.Get(s.URL + path)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			require.NoError(t, err)

			require.Equal(t, http.StatusNotFound, resp.StatusCode, path)
			require.NotContains(t, string(body), "a.png", path)
		}
	})
}
