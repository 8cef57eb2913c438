package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation 交易欄位不合法 (在任何狀態變更之前就被拒絕)
	ErrValidation = errors.New("validation failed")

	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrNotFound 找不到交易
	ErrNotFound = errors.New("transaction not found")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrLockContention 重試多次仍無法鎖定交易涉及的帳戶
	ErrLockContention = errors.New("lock contention: transaction changed while acquiring account locks")

	// ErrTransactionAlreadyProcessed 相同 idempotency key 的交易已處理過 (且已被刪除)
	ErrTransactionAlreadyProcessed = errors.New("transaction already processed")

	// ErrSelectTransactionFailed 查詢交易失敗
	ErrSelectTransactionFailed = errors.New("select transaction failed")
)

// ValidationError 描述哪個欄位不合法
// errors.Is(err, ErrValidation) 永遠成立，Unwrap 則回傳底層原因 (例如 ErrAccountNotFound)
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError 建立欄位驗證錯誤
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// UnknownAccountError 交易參照了不存在的帳戶
func UnknownAccountError(field string, id AccountID) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("unknown account %q", id),
		Err:    ErrAccountNotFound,
	}
}
