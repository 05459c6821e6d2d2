// Package bus provides the transports an mcp4xxx device can sit on:
// a Linux SPI controller, a USB serial SPI bridge and an in-memory simulation.
package bus
