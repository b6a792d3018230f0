// Package middleware はバックエンドAPIへの送信リクエストを加工する
// http.RoundTripperチェーンを提供する。
// 識別ヘッダー・Bearerトークン・アカウントルーティング・
// アンチリプレイ素材の付与と、レスポンスの検査・無害化を行う。
package middleware

import "net/http"

// RoundTripperFunc は関数をhttp.RoundTripperとして使うためのアダプター。
type RoundTripperFunc func(req *http.Request) (*http.Response, error)

// RoundTrip はhttp.RoundTripperインターフェースを実装する。
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain はbaseをラッパーで包んだRoundTripperを返す。
// 先頭のラッパーが最も外側になり、リクエストは記述順に通過する。
func Chain(base http.RoundTripper, wrappers ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	rt := base
	for i := len(wrappers) - 1; i >= 0; i-- {
		rt = wrappers[i](rt)
	}
	return rt
}

// cloneRequest はヘッダーを書き換えられるようリクエストの浅いコピーを返す。
// RoundTripperは受け取ったリクエストを変更してはならない。
func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	return clone
}

// isMutatingMethod は状態変更メソッド（POST, PUT, PATCH, DELETE）の
// 場合にtrueを返す。
func isMutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
