// Package events defines what the dispatcher publishes on the event bus.
// Every event is published with the request context, so subscribers can
// read the request ID from it.
package events

import (
	"net/http"
	"time"
)

// HTTPStart marks a request entering a route.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish marks a response fully written. Request is the routed request,
// so Request.Pattern names the matched route.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Bytes    int
	Duration time.Duration
}

// GraphQLStart precedes execution of a parsed operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish follows an execution attempt. A document that failed to
// parse or validate has Valid false and an empty OperationType.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Valid         bool
	Errors        []string
	Duration      time.Duration
}

// PoolTaskStart is published on the worker right before a task runs.
type PoolTaskStart struct {
	Wait time.Duration // time spent queued
}

// PoolTaskFinish is published on the worker once a task returned or
// panicked.
type PoolTaskFinish struct {
	Duration time.Duration
	Panicked bool
}

// PoolRejected reports a submission refused because every worker was busy
// and the queue was full.
type PoolRejected struct {
	Running int
	Waiting int
	Cap     int
}

// PoolPanic carries a recovered task panic.
type PoolPanic struct {
	Value any
	Stack []byte
}

// StoreQuery follows one statement the store ran for a resolver. Name is a
// fixed label, never the SQL text.
type StoreQuery struct {
	Name     string
	Duration time.Duration
	Err      error
}
