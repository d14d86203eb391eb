package messages

import (
	"fmt"

	messagefb "github.com/cbodonnell/gameportal/flatbuffers/message"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// The encoder and decoder are safe for concurrent EncodeAll/DecodeAll.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MessageBufferSize*4))
)

func SerializeMessage(m *Message) ([]byte, error) {
	b, err := SerializeMessageFlatbuffer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	compressed := encoder.EncodeAll(b, make([]byte, 0, len(b)))
	if len(compressed) > MessageBufferSize {
		return nil, fmt.Errorf("message of %d bytes exceeds %d", len(compressed), MessageBufferSize)
	}
	return compressed, nil
}

func DeserializeMessage(data []byte) (*Message, error) {
	if len(data) > MessageBufferSize {
		return nil, fmt.Errorf("message of %d bytes exceeds %d", len(data), MessageBufferSize)
	}
	b, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress message: %v", err)
	}

	message, err := DeserializeMessageFlatbuffer(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return message, nil
}

func SerializeMessageFlatbuffer(m *Message) ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("message type is empty")
	}
	builder := flatbuffers.NewBuilder(len(m.Payload) + 64)

	messageType := builder.CreateString(m.Type)
	payload := builder.CreateByteVector(m.Payload)

	messagefb.MessageStart(builder)
	messagefb.MessageAddType(builder, messageType)
	messagefb.MessageAddPayload(builder, payload)
	messagefb.MessageAddSeq(builder, m.Seq)
	messageOffset := messagefb.MessageEnd(builder)
	builder.Finish(messageOffset)

	return builder.FinishedBytes(), nil
}

// DeserializeMessageFlatbuffer reads a message table. The flatbuffers
// accessors panic on truncated input, so that is reported as an error.
func DeserializeMessageFlatbuffer(b []byte) (message *Message, err error) {
	if len(b) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("buffer of %d bytes is too short", len(b))
	}
	defer func() {
		if r := recover(); r != nil {
			message, err = nil, fmt.Errorf("malformed message: %v", r)
		}
	}()

	messageFlatbuffer := messagefb.GetRootAsMessage(b, 0)
	message = &Message{
		Seq:  messageFlatbuffer.Seq(),
		Type: string(messageFlatbuffer.Type()),
	}
	if payload := messageFlatbuffer.PayloadBytes(); len(payload) > 0 {
		message.Payload = append([]byte(nil), payload...)
	}
	if message.Type == "" {
		return nil, fmt.Errorf("message type is empty")
	}
	return message, nil
}
