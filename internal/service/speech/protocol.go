package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion 火山引擎语音 WebSocket 二进制协议版本
const ProtocolVersion = 0b0001

// headerUnit 是协议头的基本长度（字节），HeaderSize 以它为单位。
const headerUnit = 4

// MessageType 消息类型
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// MessageFlags 消息标志。低两位描述 sequence，WithEvent 表示携带事件元数据。
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	LastPacketNoSequence   MessageFlags = 0b0010
	NegativeSequenceNumber MessageFlags = 0b0011
	WithEvent              MessageFlags = 0b0100

	sequenceMask MessageFlags = 0b0011
)

// EventType 服务端事件类型
type EventType int32

const (
	EventTypeNone               EventType = 0
	EventTypeStartConnection    EventType = 1
	EventTypeFinishConnection   EventType = 2
	EventTypeConnectionStarted  EventType = 50
	EventTypeConnectionFailed   EventType = 51
	EventTypeConnectionFinished EventType = 52
	EventTypeSessionStarted     EventType = 150
	EventTypeSessionFinished    EventType = 152
	EventTypeSessionFailed      EventType = 153
)

// SerializationMethod 序列化方式
type SerializationMethod uint8

const (
	NoSerialization   SerializationMethod = 0b0000
	JSONSerialization SerializationMethod = 0b0001
)

// CompressionMethod 压缩方式
type CompressionMethod uint8

const (
	NoCompression   CompressionMethod = 0b0000
	GzipCompression CompressionMethod = 0b0001
)

// Header 4 字节协议头，每个字段占半字节（Reserved 占一字节）。
type Header struct {
	ProtocolVersion     uint8
	HeaderSize          uint8
	MessageType         MessageType
	MessageFlags        MessageFlags
	SerializationMethod SerializationMethod
	CompressionMethod   CompressionMethod
	Reserved            uint8
}

// Message 一帧完整消息
type Message struct {
	Header      Header
	Sequence    int32
	EventType   EventType
	SessionID   string
	ConnectID   string
	ErrorCode   uint32
	PayloadSize uint32
	Payload     []byte
}

// NewHeader 返回单位长度的协议头。
func NewHeader(msgType MessageType, flags MessageFlags, serialization SerializationMethod, compression CompressionMethod) Header {
	return Header{
		ProtocolVersion:     ProtocolVersion,
		HeaderSize:          1,
		MessageType:         msgType,
		MessageFlags:        flags,
		SerializationMethod: serialization,
		CompressionMethod:   compression,
	}
}

// Encode 把协议头打包为 4 字节。
func (h *Header) Encode() []byte {
	return []byte{
		h.ProtocolVersion<<4 | h.HeaderSize,
		uint8(h.MessageType)<<4 | uint8(h.MessageFlags),
		uint8(h.SerializationMethod)<<4 | uint8(h.CompressionMethod),
		h.Reserved,
	}
}

// DecodeHeader 解析 4 字节协议头。
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < headerUnit {
		return nil, fmt.Errorf("header data too short: got %d, need %d", len(data), headerUnit)
	}

	h := &Header{
		ProtocolVersion:     data[0] >> 4,
		HeaderSize:          data[0] & 0x0F,
		MessageType:         MessageType(data[1] >> 4),
		MessageFlags:        MessageFlags(data[1] & 0x0F),
		SerializationMethod: SerializationMethod(data[2] >> 4),
		CompressionMethod:   CompressionMethod(data[2] & 0x0F),
		Reserved:            data[3],
	}
	if h.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.ProtocolVersion)
	}
	return h, nil
}

func (m *Message) hasSequence() bool {
	flags := m.Header.MessageFlags & sequenceMask
	return flags == PositiveSequenceNumber || flags == NegativeSequenceNumber
}

func (m *Message) hasEvent() bool {
	return m.Header.MessageFlags&WithEvent == WithEvent
}

// EncodeMessage 按 header | sequence | event | payload size | payload 的顺序序列化。
func EncodeMessage(msg *Message) ([]byte, error) {
	out := msg.Header.Encode()

	if msg.hasSequence() {
		out = binary.BigEndian.AppendUint32(out, uint32(msg.Sequence))
	}

	if msg.hasEvent() {
		out = binary.BigEndian.AppendUint32(out, uint32(msg.EventType))
		if !eventSkipsSessionID(msg.EventType) {
			out = appendSized(out, msg.SessionID)
		}
		if eventHasConnectID(msg.EventType) {
			out = appendSized(out, msg.ConnectID)
		}
	}

	if msg.Header.MessageType == ErrorMessage {
		out = binary.BigEndian.AppendUint32(out, msg.ErrorCode)
	}

	out = binary.BigEndian.AppendUint32(out, uint32(len(msg.Payload)))
	return append(out, msg.Payload...), nil
}

func appendSized(out []byte, value string) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(value)))
	return append(out, value...)
}

// DecodeMessage 读取一帧消息。
func DecodeMessage(reader io.Reader) (*Message, error) {
	raw := make([]byte, headerUnit)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	header, err := DecodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	msg := &Message{Header: *header}

	// 扩展头内容目前没有定义，读出后丢弃。
	if extra := int(header.HeaderSize)*headerUnit - headerUnit; extra > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(extra)); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	if msg.hasSequence() {
		seq, err := readUint32(reader, "sequence")
		if err != nil {
			return nil, err
		}
		msg.Sequence = int32(seq)
	}

	if msg.hasEvent() {
		event, err := readUint32(reader, "event type")
		if err != nil {
			return nil, err
		}
		msg.EventType = EventType(int32(event))

		if !eventSkipsSessionID(msg.EventType) {
			if msg.SessionID, err = readSized(reader, "session id"); err != nil {
				return nil, err
			}
		}
		if eventHasConnectID(msg.EventType) {
			if msg.ConnectID, err = readSized(reader, "connect id"); err != nil {
				return nil, err
			}
		}
	}

	if header.MessageType == ErrorMessage {
		if msg.ErrorCode, err = readUint32(reader, "error code"); err != nil {
			return nil, err
		}
	}

	if msg.PayloadSize, err = readUint32(reader, "payload size"); err != nil {
		return nil, err
	}
	if msg.PayloadSize > 0 {
		msg.Payload = make([]byte, msg.PayloadSize)
		if _, err := io.ReadFull(reader, msg.Payload); err != nil {
			return nil, fmt.Errorf("failed to read payload (expected %d bytes): %w", msg.PayloadSize, err)
		}
	}

	return msg, nil
}

func readUint32(reader io.Reader, field string) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(reader, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", field, err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readSized(reader io.Reader, field string) (string, error) {
	size, err := readUint32(reader, field+" size")
	if err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, reader, int64(size)); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", field, err)
	}
	return buf.String(), nil
}

// CreateFullClientRequest 构建携带 JSON 参数的客户端请求帧。
func CreateFullClientRequest(payload []byte, compression CompressionMethod) *Message {
	return &Message{
		Header:      NewHeader(FullClientRequest, NoSequenceNumber, JSONSerialization, compression),
		PayloadSize: uint32(len(payload)),
		Payload:     payload,
	}
}

func eventSkipsSessionID(event EventType) bool {
	switch event {
	case EventTypeStartConnection, EventTypeFinishConnection,
		EventTypeConnectionStarted, EventTypeConnectionFailed,
		EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

func eventHasConnectID(event EventType) bool {
	switch event {
	case EventTypeConnectionStarted, EventTypeConnectionFailed, EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

// IsLastPacket 判断是否为最后一包
func (m *Message) IsLastPacket() bool {
	flags := m.Header.MessageFlags & sequenceMask
	return flags == LastPacketNoSequence || flags == NegativeSequenceNumber
}

// IsErrorMessage 判断是否为错误帧
func (m *Message) IsErrorMessage() bool {
	return m.Header.MessageType == ErrorMessage
}
