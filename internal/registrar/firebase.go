package registrar

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"camera-node/internal/config"
)

const (
	signInURL  = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"
	refreshURL = "https://securetoken.googleapis.com/v1/token"

	refreshMargin = time.Minute
	// transportErrorCode - код ошибки, когда запрос не дошел до сервера
	transportErrorCode = -1
)

// Firebase - Realtime Database через REST с аутентификацией по email/паролю
type Firebase struct {
	cfg    config.RegistrarConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	signInURL  string
	refreshURL string

	mu           sync.Mutex
	idToken      string
	refreshToken string
	expires      time.Time
	inFlight     bool
	failed       bool
	results      chan authResult
}

type authResult struct {
	idToken      string
	refreshToken string
	ttl          time.Duration
	err          error
}

// NewFirebase создает клиента. Проверка TLS сертификата управляется insecure_skip_verify.
func NewFirebase(cfg config.RegistrarConfig, logger *zap.Logger) (*Firebase, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("registrar.database_url is required for firebase")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("registrar.api_key is required for firebase")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec

	return &Firebase{
		cfg:        cfg,
		client:     &http.Client{Transport: transport, Timeout: cfg.WriteTimeout},
		logger:     logger.Named("firebase"),
		now:        time.Now,
		signInURL:  signInURL,
		refreshURL: refreshURL,
		results:    make(chan authResult, 1),
	}, nil
}

// Name возвращает имя бэкенда
func (f *Firebase) Name() string { return "firebase" }

// Pump запускает вход или обновление токена в фоне и забирает готовый результат
func (f *Firebase) Pump(ctx context.Context) {
	select {
	case res := <-f.results:
		f.applyAuth(res)
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight || f.failed {
		return
	}
	if f.idToken != "" && f.now().Before(f.expires.Add(-refreshMargin)) {
		return
	}

	f.inFlight = true
	refresh := f.refreshToken
	go func() {
		var res authResult
		if refresh != "" {
			res = f.refresh(ctx, refresh)
		} else {
			res = f.signIn(ctx)
		}
		f.results <- res
	}()
}

func (f *Firebase) applyAuth(res authResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight = false
	if res.err != nil {
		f.failed = true
		f.idToken = ""
		fields := []zap.Field{zap.Error(res.err)}
		var dbErr *Error
		if errors.As(res.err, &dbErr) {
			fields = append(fields, zap.Int("code", dbErr.Code), zap.String("message", dbErr.Message))
		}
		f.logger.Error("Auth error", fields...)
		return
	}

	ttl := res.ttl
	if f.cfg.TokenTTL > 0 && f.cfg.TokenTTL < ttl {
		ttl = f.cfg.TokenTTL
	}
	f.idToken = res.idToken
	f.refreshToken = res.refreshToken
	f.expires = f.now().Add(ttl)
	f.logger.Info("Auth result: token issued", zap.Duration("ttl", ttl))
}

// Ready сообщает, что токен действителен
func (f *Firebase) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idToken != "" && f.now().Before(f.expires)
}

// Authenticated совпадает с Ready; выводится в статусе при пробной записи
func (f *Firebase) Authenticated() bool {
	return f.Ready()
}

// Set записывает значение через PUT <database_url><path>.json
func (f *Firebase) Set(ctx context.Context, path string, value interface{}) error {
	f.mu.Lock()
	token := f.idToken
	f.mu.Unlock()
	if token == "" {
		return ErrNotReady
	}

	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", path, err)
	}

	endpoint := strings.TrimRight(f.cfg.DatabaseURL, "/") + "/" + strings.TrimLeft(path, "/") + ".json?auth=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return &Error{Code: transportErrorCode, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return responseError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close закрывает соединения
func (f *Firebase) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

func (f *Firebase) signIn(ctx context.Context) authResult {
	payload, _ := json.Marshal(map[string]interface{}{
		"email":             f.cfg.UserEmail,
		"password":          f.cfg.UserPassword,
		"returnSecureToken": true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.signInURL+"?key="+url.QueryEscape(f.cfg.APIKey), bytes.NewReader(payload))
	if err != nil {
		return authResult{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	}
	if err := f.doJSON(req, &out); err != nil {
		return authResult{err: err}
	}
	return authResult{idToken: out.IDToken, refreshToken: out.RefreshToken, ttl: parseSeconds(out.ExpiresIn)}
}

func (f *Firebase) refresh(ctx context.Context, refreshToken string) authResult {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.refreshURL+"?key="+url.QueryEscape(f.cfg.APIKey), strings.NewReader(form.Encode()))
	if err != nil {
		return authResult{err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	if err := f.doJSON(req, &out); err != nil {
		return authResult{err: err}
	}
	return authResult{idToken: out.IDToken, refreshToken: out.RefreshToken, ttl: parseSeconds(out.ExpiresIn)}
}

func (f *Firebase) doJSON(req *http.Request, out interface{}) error {
	resp, err := f.client.Do(req)
	if err != nil {
		return &Error{Code: transportErrorCode, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}

// responseError разбирает оба формата ошибок: {"error":"..."} (база)
// и {"error":{"code":..,"message":".."}} (Identity Toolkit)
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error json.RawMessage `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && len(body.Error) > 0 {
		var s string
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &s) == nil {
			msg = s
		} else if json.Unmarshal(body.Error, &obj) == nil && obj.Message != "" {
			msg = obj.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Code: resp.StatusCode, Message: msg}
}

func parseSeconds(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return time.Hour
	}
	return time.Duration(n) * time.Second
}
