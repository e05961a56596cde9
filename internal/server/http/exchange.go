package http

import (
	"context"

	"github.com/zavakid/tiny-http/config"
	"github.com/zavakid/tiny-http/http"
	"github.com/zavakid/tiny-http/internal/buffer"
	"github.com/zavakid/tiny-http/internal/negotiate"
	"github.com/zavakid/tiny-http/internal/protocol/http1"
	"github.com/zavakid/tiny-http/kv"
)

type outcome struct {
	response *http.Response
	err      error
}

// exchange is a single pipeline slot: the request, the storage its head refers to and whatever
// is needed to respond to it. Slots are addressed by their index in the actor's arena. The
// reading side owns a slot until it's passed into the ready queue, the writing side owns it
// until the slot is returned into the free list.
type exchange struct {
	state    State
	request  *http.Request
	arena    *buffer.Buffer
	trailers *kv.Storage
	// err is a protocol error found while receiving the request. Such exchanges are never
	// dispatched.
	err  error
	meta http1.Meta
	// coding is negotiated while the request headers are guaranteed to be untouched by the
	// handler.
	coding    negotiate.Result
	codingErr error
	hasBody   bool
	outcome   chan outcome
	ctx       context.Context
	cancel    context.CancelFunc
	// settled is closed as the body is drained off the wire, so the next request head can be
	// read.
	settled  chan struct{}
	drainErr error
}

func newExchange(cfg *config.Config) *exchange {
	request := http.NewRequest(
		kv.NewPrealloc(cfg.Headers.Number.Default), kv.New(), http.NewBody(),
	)

	return &exchange{
		request:  request,
		arena:    buffer.New(cfg.URI.RequestLineSize.Default, http1.ArenaSize(cfg)),
		trailers: kv.New(),
		outcome:  make(chan outcome, 1),
	}
}

func (e *exchange) reset() {
	e.request.Reset()
	e.arena.Clear()
	e.trailers.Clear()
	e.err = nil
	e.meta = http1.Meta{}
	e.coding, e.codingErr = negotiate.Result{}, nil
	e.hasBody = false
	e.ctx, e.cancel = nil, nil
	e.settled = make(chan struct{})
	e.drainErr = nil
}

func (e *exchange) settle(err error) {
	e.drainErr = err
	close(e.settled)
}

// bodyConsumed reports whether the request body has been read off the wire completely.
func (e *exchange) bodyConsumed() bool {
	return !e.hasBody || e.request.Body.Consumed()
}
