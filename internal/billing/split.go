// Package billing содержит чистые финансовые вычисления биллингового ядра.
package billing

import "math"

// Split распределяет сумму подписки между платформой и автором.
// total задается в минимальных единицах валюты (центах), feeRate — доля
// платформы в диапазоне [0, 1]. Комиссия округляется арифметически
// (половина вверх); доход автора всегда вычисляется как остаток,
// поэтому platformFee + creatorEarnings == total по построению.
func Split(total int64, feeRate float64) (platformFee, creatorEarnings int64) {
	if total <= 0 {
		return 0, 0
	}

	platformFee = int64(math.Floor(float64(total)*feeRate + 0.5))

	// Страхуемся от выхода за границы при feeRate вне [0, 1]
	if platformFee < 0 {
		platformFee = 0
	}
	if platformFee > total {
		platformFee = total
	}

	return platformFee, total - platformFee
}
