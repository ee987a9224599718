package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newRequestWithClient(clientID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("X-Client-ID", clientID)
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     2, // 2 req/sec
		GeneralBurst:    5, // バースト5
		MutationRate:    1, // 未使用
		MutationBurst:   10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.GeneralMiddleware()

	handlerCallCount := 0
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequestWithClient("client-1"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     1, // 1 req/sec
		GeneralBurst:    2, // バースト2
		MutationRate:    1,
		MutationBurst:   10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.GeneralMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト分（2回）は通る
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, newRequestWithClient("client-burst"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	// 3回目はレート制限に引っかかる
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestWithClient("client-burst"))

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
	if w.Result().Header.Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されるべきです")
	}
}

func TestRateLimitMiddleware_ClientsAreIndependent(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		MutationRate:    1,
		MutationBurst:   10,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	mw := rl.GeneralMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// client-aのバーストを使い切る
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestWithClient("client-a"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestWithClient("client-a"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("client-aは制限に達するべきです: status = %d", w.Result().StatusCode)
	}

	// client-bは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newRequestWithClient("client-b"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("client-b: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestMutationMiddleware_IndependentFromGeneral(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		MutationRate:    1,
		MutationBurst:   1,
		CleanupInterval: 1 * time.Minute,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	mutation := rl.MutationMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 生成・削除のバーストを使い切る
	w := httptest.NewRecorder()
	mutation.ServeHTTP(w, newRequestWithClient("client-m"))
	w = httptest.NewRecorder()
	mutation.ServeHTTP(w, newRequestWithClient("client-m"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("mutation: status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}

	// API全般の制限には影響しない
	w = httptest.NewRecorder()
	general.ServeHTTP(w, newRequestWithClient("client-m"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("general: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		MutationRate:    1,
		MutationBurst:   1,
		CleanupInterval: 10 * time.Millisecond,
	}

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.getOrCreateGeneralLimiter("client-old")
	rl.getOrCreateMutationLimiter("client-old")

	if rl.GeneralLimiterCount() != 1 || rl.MutationLimiterCount() != 1 {
		t.Fatal("エントリが作成されるべきです")
	}

	// TTL（CleanupIntervalの2倍）を超えるまで待つ
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rl.GeneralLimiterCount() == 0 && rl.MutationLimiterCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("期限切れエントリが削除されませんでした")
}
