package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type taskValue struct {
	n int
}

func TestTaskSuccess(t *testing.T) {
	var got *taskValue
	NewBackgroundTask[taskValue](nil, func() (*taskValue, error) {
		return &taskValue{n: 1}, nil
	}).OnSuccess(func(v taskValue) {
		got = &v
	}).Run()
	assert.Equal(t, &taskValue{n: 1}, got)
}

func TestTaskRecover(t *testing.T) {
	var got *taskValue
	NewBackgroundTask[taskValue](nil, func() (*taskValue, error) {
		return nil, errors.New("boom")
	}).Recover(func(err error) taskValue {
		return taskValue{n: -1}
	}).OnSuccess(func(v taskValue) {
		got = &v
	}).Run()
	assert.Equal(t, &taskValue{n: -1}, got)
}

func TestTaskOnError(t *testing.T) {
	var gotErr error
	var called bool
	NewBackgroundTaskNoError[taskValue](nil, func() *taskValue {
		return nil
	}).OnError(func(err error) {
		gotErr = err
	}).OnSuccess(func(v taskValue) {
		called = true
	}).Run()
	assert.Error(t, gotErr, "nil result is an error")
	assert.False(t, called)
}

func TestTaskTimeout(t *testing.T) {
	var got *taskValue
	NewBackgroundTaskNoError[taskValue](nil, func() *taskValue {
		time.Sleep(500 * time.Millisecond)
		return &taskValue{n: 1}
	}).WithTimeout(50 * time.Millisecond).Recover(func(err error) taskValue {
		return taskValue{n: 0}
	}).OnSuccess(func(v taskValue) {
		got = &v
	}).Run()
	assert.Equal(t, &taskValue{n: 0}, got)
}
