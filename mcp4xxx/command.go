package mcp4xxx

// Encode builds a command byte: AD3 AD2 AD1 AD0 C1 C0 D9 D8.
// The command must already be shifted into bits 3-2.
func Encode(address Address, command Command, data uint8) byte {
	return byte(address)<<4 | byte(command)&commandMask | data&dataMask
}
