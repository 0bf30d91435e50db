// Package canbus provides core types and transports for Controller Area
// Network (CAN) buses.
//
// It includes:
//   - A Frame type with validation and SocketCAN binary marshaling
//   - The Bus interface, with context-aware Send and Receive
//   - An in-memory loopback bus for tests and dry runs
//   - A Linux SocketCAN driver via raw syscalls
//   - An SLCAN (Lawicel serial-line) driver for USB-CAN adapters
//   - A Mux that fans received frames out to filtered subscribers
//   - Logging and pcap capture decorators for any Bus
package canbus
