package listen

import (
	"bytes"
	"encoding/binary"
)

// encodeWAV wraps mono PCM16 samples in a minimal RIFF/WAVE container.
// The Whisper transcription endpoint needs a real file format, not raw PCM.
func encodeWAV(pcm []int16, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := len(pcm) * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(&buf, binary.LittleEndian, pcm)

	return buf.Bytes()
}
