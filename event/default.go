// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package event

// Default is the package-level hub behind the functions below. It delivers on
// the process-wide default scheduling.
var Default = New()

// Bind registers a listener on the default hub. This functions same way as
// Hub.Bind() but uses the default hub instead.
func Bind(types string, listener any) *Hub {
	return Default.Bind(types, listener)
}

// Unbind removes listeners from the default hub.
func Unbind(types string, listeners ...any) *Hub {
	return Default.Unbind(types, listeners...)
}

// Trigger schedules delivery of events on the default hub.
func Trigger(types string, args ...any) *Hub {
	return Default.Trigger(types, args...)
}

// On is an alias of Bind.
func On(types string, listener any) *Hub {
	return Default.Bind(types, listener)
}

// Off is an alias of Unbind.
func Off(types string, listeners ...any) *Hub {
	return Default.Unbind(types, listeners...)
}

// Emit is an alias of Trigger.
func Emit(types string, args ...any) *Hub {
	return Default.Trigger(types, args...)
}
