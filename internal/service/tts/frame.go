package tts

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎流式语音二进制协议：4 字节头 + 可选序号/事件 + 4 字节长度 + 负载。
const protocolVersion = 0b0001

type messageType uint8

const (
	fullClientRequest       messageType = 0b0001
	fullServerResponse      messageType = 0b1001
	audioOnlyServerResponse messageType = 0b1011
	errorMessage            messageType = 0b1111
)

type messageFlags uint8

const (
	noSequence       messageFlags = 0b0000
	positiveSequence messageFlags = 0b0001
	lastNoSequence   messageFlags = 0b0010
	negativeSequence messageFlags = 0b0011
	withEvent        messageFlags = 0b0100
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
)

const (
	serializationNone uint8 = 0b0000
	serializationJSON uint8 = 0b0001

	compressionNone uint8 = 0b0000
	compressionGzip uint8 = 0b0001
)

// frame 一条协议消息。
type frame struct {
	Type        messageType
	Flags       messageFlags
	Compression uint8
	Sequence    int32
	Event       eventType
	SessionID   string
	ConnectID   string
	ErrorCode   uint32
	Payload     []byte
}

// last reports whether the server marked this as the final packet.
func (f *frame) last() bool {
	switch f.Flags & 0b0011 {
	case lastNoSequence, negativeSequence:
		return true
	}
	return false
}

func (f *frame) finished() bool {
	return f.Flags&withEvent == withEvent && f.Event == eventSessionFinished
}

func eventSkipsSession(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func eventHasConnect(e eventType) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

// requestFrame builds a JSON full client request.
func requestFrame(payload []byte) *frame {
	return &frame{Type: fullClientRequest, Flags: noSequence, Payload: payload}
}

func encodeFrame(f *frame) []byte {
	var buf bytes.Buffer
	serialization := serializationNone
	if f.Type == fullClientRequest || f.Type == fullServerResponse {
		serialization = serializationJSON
	}
	buf.Write([]byte{
		protocolVersion<<4 | 0b0001,
		uint8(f.Type)<<4 | uint8(f.Flags),
		serialization<<4 | f.Compression,
		0,
	})

	writeU32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	writeString := func(s string) {
		writeU32(uint32(len(s)))
		buf.WriteString(s)
	}

	switch f.Flags & 0b0011 {
	case positiveSequence, negativeSequence:
		writeU32(uint32(f.Sequence))
	}
	if f.Flags&withEvent == withEvent {
		writeU32(uint32(f.Event))
		if !eventSkipsSession(f.Event) {
			writeString(f.SessionID)
		}
		if eventHasConnect(f.Event) {
			writeString(f.ConnectID)
		}
	}
	if f.Type == errorMessage {
		writeU32(f.ErrorCode)
	}
	writeU32(uint32(len(f.Payload)))
	buf.Write(f.Payload)
	return buf.Bytes()
}

func decodeFrame(r io.Reader) (*frame, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if v := head[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}

	f := &frame{
		Type:        messageType(head[1] >> 4),
		Flags:       messageFlags(head[1] & 0x0F),
		Compression: head[2] & 0x0F,
	}

	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	readU32 := func(what string) (uint32, error) {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("read %s: %w", what, err)
		}
		return binary.BigEndian.Uint32(b[:]), nil
	}
	readString := func(what string) (string, error) {
		n, err := readU32(what + " size")
		if err != nil || n == 0 {
			return "", err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("read %s: %w", what, err)
		}
		return string(b), nil
	}

	switch f.Flags & 0b0011 {
	case positiveSequence, negativeSequence:
		seq, err := readU32("sequence")
		if err != nil {
			return nil, err
		}
		f.Sequence = int32(seq)
	}

	if f.Flags&withEvent == withEvent {
		ev, err := readU32("event")
		if err != nil {
			return nil, err
		}
		f.Event = eventType(int32(ev))
		if !eventSkipsSession(f.Event) {
			if f.SessionID, err = readString("session id"); err != nil {
				return nil, err
			}
		}
		if eventHasConnect(f.Event) {
			if f.ConnectID, err = readString("connect id"); err != nil {
				return nil, err
			}
		}
	}

	if f.Type == errorMessage {
		code, err := readU32("error code")
		if err != nil {
			return nil, err
		}
		f.ErrorCode = code
	}

	size, err := readU32("payload size")
	if err != nil {
		return nil, err
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
		}
	}
	return f, nil
}

// payload returns the frame body with compression removed.
func (f *frame) payload() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(f.Payload))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}
