// Copyright (c) 2021 Red Hat, Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import "time"

// ValueObserver1 receives the single result of a timed call together with its duration in seconds.
type ValueObserver1[T any] interface {
	Observe(val T, seconds float64)
}

// ValueObserver2 receives the two results of a timed call together with its duration in seconds.
type ValueObserver2[T any, U any] interface {
	Observe(val1 T, val2 U, seconds float64)
}

// ValueObserverFunc1 is a functional implementation of ValueObserver1.
type ValueObserverFunc1[T any] func(val T, seconds float64)

// ValueObserverFunc2 is a functional implementation of ValueObserver2.
type ValueObserverFunc2[T any, U any] func(val1 T, val2 U, seconds float64)

func (f ValueObserverFunc1[T]) Observe(v T, seconds float64) {
	f(v, seconds)
}

func (f ValueObserverFunc2[T, U]) Observe(v1 T, v2 U, seconds float64) {
	f(v1, v2, seconds)
}

var _ ValueObserver1[error] = (ValueObserverFunc1[error])(nil)
var _ ValueObserver2[int, error] = (ValueObserverFunc2[int, error])(nil)

// ValueTimer1 measures the duration of a call returning a single value. Unlike prometheus.Timer it passes the result
// of the call to the observer so that e.g. the failed calls can be recorded separately. It can't be deferred, wrap
// the call instead:
//
//	timer := metrics.NewValueTimer1(observer)
//	return timer.ObserveValuesAndDuration(store.Delete(ctx, key))
type ValueTimer1[T any] struct {
	Observer  ValueObserver1[T]
	startTime time.Time
}

// ValueTimer2 is ValueTimer1 for calls returning two values.
type ValueTimer2[T any, U any] struct {
	Observer  ValueObserver2[T, U]
	startTime time.Time
}

func NewValueTimer1[T any](observer ValueObserver1[T]) ValueTimer1[T] {
	return ValueTimer1[T]{Observer: observer, startTime: time.Now()}
}

func NewValueTimer2[T any, U any](observer ValueObserver2[T, U]) ValueTimer2[T, U] {
	return ValueTimer2[T, U]{Observer: observer, startTime: time.Now()}
}

// ObserveValuesAndDuration passes the value and the time elapsed since the creation of the timer to the observer and
// returns the value unchanged.
func (o ValueTimer1[T]) ObserveValuesAndDuration(val T) T {
	o.Observer.Observe(val, time.Since(o.startTime).Seconds())
	return val
}

// ObserveValuesAndDuration passes the values and the time elapsed since the creation of the timer to the observer and
// returns the values unchanged.
func (o ValueTimer2[T, U]) ObserveValuesAndDuration(v1 T, v2 U) (T, U) {
	o.Observer.Observe(v1, v2, time.Since(o.startTime).Seconds())
	return v1, v2
}
