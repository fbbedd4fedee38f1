package framing

import "fmt"

// Opcode is an OBEX request opcode
type Opcode byte

// FinalBit is set on the last packet of a multi-packet request
const FinalBit = 0x80

const (
	OpConnect    Opcode = 0x80
	OpDisconnect Opcode = 0x81
	OpPut        Opcode = 0x02
	OpPutFinal   Opcode = 0x82
	OpGet        Opcode = 0x03
	OpGetFinal   Opcode = 0x83
	OpSetPath    Opcode = 0x85
	OpAction     Opcode = 0x86
	OpSession    Opcode = 0x87
	OpAbort      Opcode = 0xFF
)

func (o Opcode) String() string {
	switch o {
	case OpConnect:
		return "CONNECT"
	case OpDisconnect:
		return "DISCONNECT"
	case OpPut:
		return "PUT"
	case OpPutFinal:
		return "PUT_FINAL"
	case OpGet:
		return "GET"
	case OpGetFinal:
		return "GET_FINAL"
	case OpSetPath:
		return "SETPATH"
	case OpAction:
		return "ACTION"
	case OpSession:
		return "SESSION"
	case OpAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("Opcode(0x%02X)", byte(o))
	}
}

// Final returns true if the final bit is set
func (o Opcode) Final() bool { return o&FinalBit != 0 }
