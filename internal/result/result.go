// Package result holds the envelope every API call is carried in:
// {"success": bool, "data": T, "error": string}.
package result

import (
	"encoding/json"
	"errors"
)

// ErrEmptyFailure is returned by Err when a failed result carries no message.
var ErrEmptyFailure = errors.New("request failed")

// Result is either a success carrying Data or a failure carrying Error.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Success: true, Data: v}
}

func Fail[T any](msg string) Result[T] {
	return Result[T]{Error: msg}
}

// FromError converts err into a failed result, or an empty success when err is nil.
func FromError[T any](err error) Result[T] {
	if err == nil {
		var zero T
		return Ok(zero)
	}
	return Fail[T](err.Error())
}

func (r Result[T]) IsOk() bool {
	return r.Success
}

// Err returns nil for a success and the carried message otherwise.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	if r.Error != "" {
		return errors.New(r.Error)
	}
	if r.Message != "" {
		return errors.New(r.Message)
	}
	return ErrEmptyFailure
}

func (r Result[T]) Value() (T, error) {
	return r.Data, r.Err()
}

// Decode parses an envelope. A body that is not an envelope is a failure.
func Decode[T any](body []byte) Result[T] {
	var r Result[T]
	if err := json.Unmarshal(body, &r); err != nil {
		return Fail[T]("invalid response: " + err.Error())
	}
	if !r.Success && r.Error == "" && r.Message == "" {
		r.Error = ErrEmptyFailure.Error()
	}
	return r
}
