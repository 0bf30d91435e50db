// Package cybergear encodes and decodes the CAN protocol spoken by the
// CyberGear class of servo actuators.
//
// Every command travels in a 29-bit extended identifier split into three
// fields:
//
//	bits 24..28  mode    (command class)
//	bits  8..23  field   (command specific: host id, quantized torque, ...)
//	bits  0..7   target  (motor bus address)
//
// Builders in this package never perform I/O. They return canbus.Frame
// values that a canbus.Sender puts on the wire. Motor binds a target id to
// the builders and tracks the enable/disable lifecycle on the client side.
//
// Physical quantities are mapped onto 16-bit integers by the Quantizer.
// Out-of-range values saturate unless a Checked quantizer is selected.
package cybergear
