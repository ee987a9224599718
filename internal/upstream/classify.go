package upstream

// CallResult はHTTPステータスコードに基づくAPI呼び出し結果の分類。
type CallResult int

const (
	// CallResultOK は呼び出し成功（2xx）。
	CallResultOK CallResult = iota
	// CallResultRetryable は再試行可能な失敗（429/5xx）。
	// ポーリングは継続し、次のティックで再度フェッチする。
	CallResultRetryable
	// CallResultRejected はリクエスト自体の問題による拒否（4xx）。
	// 再試行しても成功しない。
	CallResultRejected
)

// ClassifyHTTPStatus はHTTPステータスコードを呼び出し結果に分類する。
func ClassifyHTTPStatus(statusCode int) CallResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return CallResultOK
	case statusCode == 429:
		return CallResultRetryable
	case statusCode >= 500:
		return CallResultRetryable
	default:
		return CallResultRejected
	}
}
