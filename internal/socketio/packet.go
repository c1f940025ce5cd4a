package socketio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO packet types.
const (
	packetConnect      = '0'
	packetDisconnect   = '1'
	packetEvent        = '2'
	packetAck          = '3'
	packetConnectError = '4'
	packetBinaryEvent  = '5'
	packetBinaryAck    = '6'
)

var errMalformedPacket = errors.New("socketio: malformed packet")

type packet struct {
	Type        byte
	Namespace   string
	Attachments int
	Data        json.RawMessage
}

// placeholder marks the position of a binary attachment in an event.
type placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}

func isBinary(t byte) bool {
	return t == packetBinaryEvent || t == packetBinaryAck
}

// encode renders p as an Engine.IO message frame.
func (p packet) encode() string {
	var b strings.Builder
	b.WriteByte(eioMessage)
	b.WriteByte(p.Type)
	if isBinary(p.Type) {
		b.WriteString(strconv.Itoa(p.Attachments))
		b.WriteByte('-')
	}
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	b.Write(p.Data)
	return b.String()
}

// decodePacket parses a Socket.IO packet, without the Engine.IO prefix.
// Ack ids are skipped since this client never requests acknowledgements.
func decodePacket(s string) (packet, error) {
	if s == "" || s[0] < packetConnect || s[0] > packetBinaryAck {
		return packet{}, errMalformedPacket
	}
	p := packet{Type: s[0], Namespace: "/"}
	rest := s[1:]

	if isBinary(p.Type) {
		i := strings.IndexByte(rest, '-')
		if i < 0 {
			return packet{}, errMalformedPacket
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil || n < 0 {
			return packet{}, errMalformedPacket
		}
		p.Attachments = n
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.Namespace = rest[:i]
			rest = rest[i+1:]
		} else {
			p.Namespace = rest
			rest = ""
		}
	}

	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	rest = rest[j:]

	if rest != "" {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// eventPacket builds an EVENT packet, or a BINARY_EVENT with one attachment
// when data is a byte slice.
func eventPacket(event, namespace string, data interface{}) (packet, []byte, error) {
	if raw, ok := data.([]byte); ok {
		payload, err := json.Marshal([]interface{}{event, placeholder{Placeholder: true, Num: 0}})
		if err != nil {
			return packet{}, nil, err
		}
		return packet{Type: packetBinaryEvent, Namespace: namespace, Attachments: 1, Data: payload}, raw, nil
	}

	args := []interface{}{event}
	if data != nil {
		args = append(args, data)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return packet{}, nil, err
	}
	return packet{Type: packetEvent, Namespace: namespace, Data: payload}, nil, nil
}

// decodeEvent splits an event array into its name and first argument.
func decodeEvent(data json.RawMessage) (string, json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return "", nil, errMalformedPacket
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, errMalformedPacket
	}
	if len(items) < 2 {
		return name, nil, nil
	}
	return name, items[1], nil
}

// resolvePlaceholder replaces a binary placeholder argument with its
// attachment, encoded as a JSON (base64) string.
func resolvePlaceholder(arg json.RawMessage, attachments [][]byte) json.RawMessage {
	var ph placeholder
	if err := json.Unmarshal(arg, &ph); err != nil || !ph.Placeholder {
		return arg
	}
	if ph.Num < 0 || ph.Num >= len(attachments) {
		return arg
	}
	encoded, err := json.Marshal(attachments[ph.Num])
	if err != nil {
		return arg
	}
	return encoded
}
