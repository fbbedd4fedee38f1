package header

import "fmt"

// ID is an OBEX header identifier. Its top two bits give the
// encoding of the header's value.
type ID byte

// Kind is the encoding of a header value
type Kind byte

const (
	// KindText is null terminated UTF-16BE text with a two byte length
	KindText Kind = 0x00
	// KindBytes is a byte sequence with a two byte length
	KindBytes Kind = 0x40
	// KindByte is a single byte
	KindByte Kind = 0x80
	// KindUint32 is a four byte big endian integer
	KindUint32 Kind = 0xC0
)

// Kind returns the encoding of id's value
func (id ID) Kind() Kind { return Kind(id & 0xC0) }

const (
	Count                       ID = 0xC0
	Name                        ID = 0x01
	Type                        ID = 0x42
	Length                      ID = 0xC3
	TimeISO8601                 ID = 0x44
	Time4Byte                   ID = 0xC4
	Description                 ID = 0x05
	Target                      ID = 0x46
	HTTP                        ID = 0x47
	Body                        ID = 0x48
	EndOfBody                   ID = 0x49
	Who                         ID = 0x4A
	ConnectionID                ID = 0xCB
	ApplicationParameter        ID = 0x4C
	AuthChallenge               ID = 0x4D
	AuthResponse                ID = 0x4E
	CreatorID                   ID = 0xCF
	WANUUID                     ID = 0x50
	ObjectClass                 ID = 0x51
	SessionParameters           ID = 0x52
	SessionSequenceNumber       ID = 0x93
	ActionID                    ID = 0x94
	DestName                    ID = 0x15
	Permissions                 ID = 0xD6
	SingleResponseMode          ID = 0x97
	SingleResponseModeParameter ID = 0x98
)

// Single Response Mode header values
const (
	SRMDisabled  byte = 0x00
	SRMEnabled   byte = 0x01
	SRMSupported byte = 0x02

	// SRMParamWait asks the peer to wait for a response before sending
	// its next packet.
	SRMParamWait byte = 0x01
)

// Action identifiers carried by the ActionID header
const (
	ActionCopy           byte = 0x00
	ActionMoveRename     byte = 0x01
	ActionSetPermissions byte = 0x02
)

var idNames = map[ID]string{
	Count:                       "Count",
	Name:                        "Name",
	Type:                        "Type",
	Length:                      "Length",
	TimeISO8601:                 "Time",
	Time4Byte:                   "Time4Byte",
	Description:                 "Description",
	Target:                      "Target",
	HTTP:                        "HTTP",
	Body:                        "Body",
	EndOfBody:                   "EndOfBody",
	Who:                         "Who",
	ConnectionID:                "ConnectionID",
	ApplicationParameter:        "ApplicationParameter",
	AuthChallenge:               "AuthChallenge",
	AuthResponse:                "AuthResponse",
	CreatorID:                   "CreatorID",
	WANUUID:                     "WANUUID",
	ObjectClass:                 "ObjectClass",
	SessionParameters:           "SessionParameters",
	SessionSequenceNumber:       "SessionSequenceNumber",
	ActionID:                    "ActionID",
	DestName:                    "DestName",
	Permissions:                 "Permissions",
	SingleResponseMode:          "SRM",
	SingleResponseModeParameter: "SRMP",
}

func (id ID) String() string {
	if s, ok := idNames[id]; ok {
		return s
	}
	return fmt.Sprintf("Header(0x%02X)", byte(id))
}
