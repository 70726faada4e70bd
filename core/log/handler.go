// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Handler is the handler of log messages.
type Handler interface {
	Handle(*Message)
	Close()
}

type handler struct {
	handle func(*Message)
	close  func()
}

func (h handler) Handle(m *Message) { h.handle(m) }
func (h handler) Close() {
	if h.close != nil {
		h.close()
	}
}

// NewHandler returns a Handler that calls handle for each message and close
// when the handler is closed.
func NewHandler(handle func(*Message), close func()) Handler {
	return handler{handle, close}
}

type handlerKeyTy string

const handlerKey handlerKeyTy = "log.handlerKey"

// PutHandler returns a new context with the Handler assigned to w.
func PutHandler(ctx context.Context, w Handler) context.Context {
	return context.WithValue(ctx, handlerKey, w)
}

// GetHandler returns the Handler assigned to ctx.
func GetHandler(ctx context.Context) Handler {
	out, _ := ctx.Value(handlerKey).(Handler)
	return out
}

// Writer returns a Handler that prints each message with style s to w.
// Writes are serialized, so the handler can be shared between goroutines.
func Writer(s Style, w io.Writer) Handler {
	mutex := sync.Mutex{}
	return handler{
		handle: func(m *Message) {
			mutex.Lock()
			defer mutex.Unlock()
			fmt.Fprintln(w, s.Print(m))
		},
	}
}

// Channel is a Handler that passes log messages to another Handler through a
// chan of the given size. Messages are handled on a single goroutine, in the
// order they were logged. Close flushes the chan and closes h.
func Channel(h Handler, size int) Handler {
	c := make(chan *Message, size)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range c {
			h.Handle(m)
		}
	}()
	once := sync.Once{}
	return handler{
		handle: func(m *Message) { c <- m },
		close: func() {
			once.Do(func() {
				close(c)
				<-done
				h.Close()
			})
		},
	}
}
