package packet

import "fmt"

// Client → server.
const (
	C_OPCODE_HELLO     byte = 0x01 // name S, x F, y F, z F, dimension D
	C_OPCODE_MOVE      byte = 0x02 // x F, y F, z F
	C_OPCODE_DIMENSION byte = 0x03 // dimension D
	C_OPCODE_QUIT      byte = 0x04
)

// Server → client.
const (
	S_OPCODE_WELCOME    byte = 0x81 // viewer id Q
	S_OPCODE_SYNC       byte = 0x82 // msgpack batch
	S_OPCODE_DISCONNECT byte = 0x83 // reason S
)

var opcodeNames = map[byte]string{
	C_OPCODE_HELLO:      "C_HELLO",
	C_OPCODE_MOVE:       "C_MOVE",
	C_OPCODE_DIMENSION:  "C_DIMENSION",
	C_OPCODE_QUIT:       "C_QUIT",
	S_OPCODE_WELCOME:    "S_WELCOME",
	S_OPCODE_SYNC:       "S_SYNC",
	S_OPCODE_DISCONNECT: "S_DISCONNECT",
}

// OpcodeName returns the protocol name of op, or its hex value.
func OpcodeName(op byte) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", op)
}
