// Package validation содержит функции валидации входных данных.
package validation

import "strings"

const codeLength = 9

// ErrorKind описывает причину, по которой код не прошёл проверку.
type ErrorKind string

const (
	ErrorKindWrongLength           ErrorKind = "WRONG_LENGTH"
	ErrorKindInvalidCharacter      ErrorKind = "INVALID_CHARACTER"
	ErrorKindInvalidCheckCharacter ErrorKind = "INVALID_CHECK_CHARACTER"
	ErrorKindCheckDigitMismatch    ErrorKind = "CHECK_DIGIT_MISMATCH"
)

// Result содержит итог проверки контрольной цифры кода CUSIP.
type Result struct {
	Valid           bool
	ErrorKind       ErrorKind
	Position        int
	ProvidedDigit   int
	CalculatedDigit int
	Sum             int
}

// HasChecksum сообщает, были ли вычислены контрольная сумма и ожидаемая цифра.
func (r Result) HasChecksum() bool {
	return r.ErrorKind != ErrorKindWrongLength && r.ErrorKind != ErrorKindInvalidCharacter
}

// HasProvidedDigit сообщает, удалось ли прочитать контрольную цифру из кода.
func (r Result) HasProvidedDigit() bool {
	return r.Valid || r.ErrorKind == ErrorKindCheckDigitMismatch
}

// charValue возвращает числовое значение символа кода по расширенному алфавиту CUSIP.
// Буквы в верхнем и нижнем регистре эквивалентны.
func charValue(ch rune) (int, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0'), true
	case ch >= 'A' && ch <= 'Z':
		return 10 + int(ch-'A'), true
	case ch >= 'a' && ch <= 'z':
		return 10 + int(ch-'a'), true
	case ch == '*':
		return 36, true
	case ch == '@':
		return 37, true
	case ch == '#':
		return 38, true
	}
	return 0, false
}

// ValidateCUSIP проверяет контрольную цифру 9-символьного кода CUSIP
// по модифицированному алгоритму Луна. Любой дефект входных данных
// возвращается как обычный результат, функция не паникует.
func ValidateCUSIP(code string) Result {
	chars := []rune(strings.TrimSpace(code))
	if len(chars) != codeLength {
		return Result{ErrorKind: ErrorKindWrongLength}
	}

	sum := 0
	for i, ch := range chars[:codeLength-1] {
		v, ok := charValue(ch)
		if !ok {
			return Result{ErrorKind: ErrorKindInvalidCharacter, Position: i + 1}
		}
		// Символы на чётных позициях (нумерация с единицы) удваиваются.
		if (i+1)%2 == 0 {
			v *= 2
		}
		sum += v/10 + v%10
	}

	calculated := (10 - sum%10) % 10

	check := chars[codeLength-1]
	if check < '0' || check > '9' {
		return Result{
			ErrorKind:       ErrorKindInvalidCheckCharacter,
			CalculatedDigit: calculated,
			Sum:             sum,
		}
	}

	res := Result{
		ProvidedDigit:   int(check - '0'),
		CalculatedDigit: calculated,
		Sum:             sum,
	}

	if res.ProvidedDigit == calculated {
		res.Valid = true
	} else {
		res.ErrorKind = ErrorKindCheckDigitMismatch
	}

	return res
}
