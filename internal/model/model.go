// Package model содержит доменные сущности сервиса проверки кодов.
package model

import "time"

// Verification описывает одну выполненную проверку кода CUSIP.
// Числовые поля заданы указателями: для кодов неверной длины или с
// недопустимыми символами контрольная сумма не вычисляется.
type Verification struct {
	ClientID        string
	Code            string
	Valid           bool
	ErrorKind       string
	Position        int
	ProvidedDigit   *int
	CalculatedDigit *int
	Checksum        *int
	CheckedAt       time.Time
}
