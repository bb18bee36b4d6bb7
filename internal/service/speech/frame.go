package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎 openspeech v3 二进制帧：4 字节头 + 可选 sequence + 可选事件元数据
// + payload size + payload，全部大端序。

const frameVersion = 0b0001

type frameKind uint8

const (
	kindFullClientRequest  frameKind = 0b0001
	kindFullServerResponse frameKind = 0b1001
	kindAudioOnlyResponse  frameKind = 0b1011
	kindError              frameKind = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence       frameFlags = 0b0000
	flagPositiveSequence frameFlags = 0b0001
	flagLastNoSequence   frameFlags = 0b0010
	flagNegativeSequence frameFlags = 0b0011
	flagWithEvent        frameFlags = 0b0100

	sequenceMask frameFlags = 0b0011
)

const (
	serializationNone uint8 = 0b0000
	serializationJSON uint8 = 0b0001

	compressionNone uint8 = 0b0000
	compressionGzip uint8 = 0b0001
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
	eventSessionFailed      eventType = 153
)

// frame 是一个解码后的协议帧。
type frame struct {
	Kind          frameKind
	Flags         frameFlags
	Serialization uint8
	Compression   uint8
	Sequence      int32
	Event         eventType
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

func (f *frame) hasSequence() bool {
	s := f.Flags & sequenceMask
	return s == flagPositiveSequence || s == flagNegativeSequence
}

func (f *frame) hasEvent() bool {
	return f.Flags&flagWithEvent != 0
}

// isLast 表示服务端的最后一包。
func (f *frame) isLast() bool {
	s := f.Flags & sequenceMask
	return s == flagLastNoSequence || s == flagNegativeSequence
}

// 连接级事件不带 session id，只有连接回执带 connect id。
func (e eventType) carriesSessionID() bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	default:
		return true
	}
}

func (e eventType) carriesConnectID() bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

func newJSONRequest(payload []byte) *frame {
	return &frame{
		Kind:          kindFullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializationJSON,
		Compression:   compressionNone,
		Payload:       payload,
	}
}

func (f *frame) encode() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		frameVersion<<4 | 0b0001,
		uint8(f.Kind)<<4 | uint8(f.Flags),
		f.Serialization<<4 | f.Compression,
		0x00,
	})

	if f.hasSequence() {
		writeUint32(&buf, uint32(f.Sequence))
	}
	if f.hasEvent() {
		writeUint32(&buf, uint32(f.Event))
		if f.Event.carriesSessionID() {
			writeString(&buf, f.SessionID)
		}
		if f.Event.carriesConnectID() {
			writeString(&buf, f.ConnectID)
		}
	}
	if f.Kind == kindError {
		writeUint32(&buf, f.ErrorCode)
	}
	writeUint32(&buf, uint32(len(f.Payload)))
	buf.Write(f.Payload)
	return buf.Bytes()
}

func decodeFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if version := head[0] >> 4; version != frameVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &frame{
		Kind:          frameKind(head[1] >> 4),
		Flags:         frameFlags(head[1] & 0x0F),
		Serialization: head[2] >> 4,
		Compression:   head[2] & 0x0F,
	}

	// header size 以 4 字节为单位，扩展部分直接跳过
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	if f.hasSequence() {
		seq, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
		f.Sequence = int32(seq)
	}

	if f.hasEvent() {
		ev, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		f.Event = eventType(int32(ev))
		if f.Event.carriesSessionID() {
			if f.SessionID, err = readString(r); err != nil {
				return nil, fmt.Errorf("failed to read session id: %w", err)
			}
		}
		if f.Event.carriesConnectID() {
			if f.ConnectID, err = readString(r); err != nil {
				return nil, fmt.Errorf("failed to read connect id: %w", err)
			}
		}
	}

	if f.Kind == kindError {
		code, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
		f.ErrorCode = code
	}

	size, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload size: %w", err)
	}
	if int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("payload truncated: want %d bytes, have %d", size, r.Len())
	}
	f.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return f, nil
}

// payload 返回解压后的内容。
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

var errShortRead = errors.New("short read")

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	size, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int64(size) > int64(r.Len()) {
		return "", errShortRead
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
