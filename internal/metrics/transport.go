package metrics

import (
	"net/http"
	"time"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// InstrumentTransport は送信リクエストの件数とレイテンシを記録する
// RoundTripperラッパーを返す。ミドルウェアチェーンの最外周に置く。
func InstrumentTransport(collector MetricsCollector) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			if err != nil {
				collector.RecordOutboundFailure()
				return nil, err
			}
			collector.RecordOutboundRequest(resp.StatusCode, time.Since(start))
			return resp, nil
		})
	}
}
