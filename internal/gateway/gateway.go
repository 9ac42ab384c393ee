// Package gateway talks to the third-party payment processor.
package gateway

import (
	"context"
	"errors"
)

// SuccessCode is the only result code that confirms a charge.
const SuccessCode = 0

var ErrUnavailable = errors.New("payment gateway unavailable")

type ChargeRequest struct {
	OrderID string
	Amount  int64
	Info    string
}

type ChargeResult struct {
	ResultCode int    `json:"resultCode"`
	PayURL     string `json:"payUrl"`
	Message    string `json:"message"`
}

func (r ChargeResult) OK() bool { return r.ResultCode == SuccessCode }

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
