package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

// ceilSeconds arredonda para cima; durações positivas viram no mínimo 1s.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// policyHeader monta RateLimit-Policy no formato "<max>;w=<janela em s>".
func policyHeader(max int64, window time.Duration) string {
	return formatInt(max) + ";w=" + formatInt(ceilSeconds(window))
}
