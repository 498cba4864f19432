// Package monitor polls the approved state for one channel and hands
// each item to that channel's Publisher. Success archives the item with
// a result summary; failure leaves it in place for the next cycle and
// escalates to the errors state once the consecutive-failure bound is
// reached. All network and automation detail lives behind the Publisher
// interface.
package monitor
