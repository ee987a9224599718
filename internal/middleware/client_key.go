// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"net"
	"net/http"
)

// clientIDHeader はブラウザUIがタブ識別のために付与するヘッダー。
const clientIDHeader = "X-Client-ID"

// ClientKey はレート制限とログに使用するクライアント識別子を返す。
// X-Client-IDヘッダーがあればそれを、なければ接続元IPアドレスを使う。
func ClientKey(r *http.Request) string {
	if id := r.Header.Get(clientIDHeader); id != "" {
		return id
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
