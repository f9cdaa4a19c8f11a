package media

import (
	"encoding/binary"
	"time"
)

// Speech audio format returned by the TTS model.
const (
	SpeechSampleRate = 24000
	SpeechChannels   = 1
	bitsPerSample    = 16
)

// PCMToWAV wraps 16-bit little-endian PCM samples in a RIFF/WAVE container.
func PCMToWAV(pcm []byte, sampleRate, channels int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, 44+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], bitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// PCMDuration is the playback length of 16-bit PCM data.
func PCMDuration(pcmLen, sampleRate, channels int) time.Duration {
	bytesPerSecond := sampleRate * channels * bitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(pcmLen) * time.Second / time.Duration(bytesPerSecond)
}
