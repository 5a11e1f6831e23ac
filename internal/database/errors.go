package database

import "errors"

// Sentinel errors returned by repository operations. Repositories translate
// sql.ErrNoRows into one of these so callers never see a bare nil, nil.
var (
	ErrNotFound            = errors.New("entity not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrOutputNotFound      = errors.New("output not found")
	ErrBasketNotFound      = errors.New("basket not found")
	ErrProvenTxNotFound    = errors.New("proven tx not found")
	ErrProvenTxReqNotFound = errors.New("proven tx req not found")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrSettingsNotFound    = errors.New("settings not found")
)
