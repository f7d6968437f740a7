// Package audio приводит сырой звук микрофона к 16 kHz mono PCM16 и упаковывает его в WAV.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	TargetSampleRate = 16000
	WAVHeaderSize    = 44
	bytesPerSample   = 2
)

// Downsample усредняет блоки входных отсчётов в один выходной.
// Если inRate <= outRate - только конвертация float32 → int16.
func Downsample(input []float32, inRate, outRate int) []int16 {
	if len(input) == 0 {
		return []int16{}
	}
	if inRate <= outRate || outRate <= 0 {
		return Float32ToInt16(input)
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(math.Round(float64(len(input)) / ratio))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]int16, outLen)

	in := 0
	for o := 0; o < outLen; o++ {
		next := int(math.Round(float64(o+1) * ratio))
		if next > len(input) {
			next = len(input)
		}
		var sum float64
		count := 0
		for i := in; i < next; i++ {
			sum += float64(input[i])
			count++
		}
		var sample float64
		if count > 0 {
			sample = sum / float64(count)
		}
		out[o] = toInt16(sample)
		in = next
	}
	return out
}

func Float32ToInt16(input []float32) []int16 {
	out := make([]int16, len(input))
	for i, v := range input {
		out[i] = toInt16(float64(v))
	}
	return out
}

func toInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7fff)
}

// EncodeWAV: минимальный RIFF/WAVE контейнер: 44 байта заголовка + PCM16 little-endian.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	blockAlign := channels * bytesPerSample
	byteRate := sampleRate * blockAlign
	dataSize := len(samples) * bytesPerSample

	buf := make([]byte, WAVHeaderSize+dataSize)
	le := binary.LittleEndian

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1) // PCM
	le.PutUint16(buf[22:24], uint16(channels))
	le.PutUint32(buf[24:28], uint32(sampleRate))
	le.PutUint32(buf[28:32], uint32(byteRate))
	le.PutUint16(buf[32:34], uint16(blockAlign))
	le.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataSize))

	off := WAVHeaderSize
	for _, s := range samples {
		le.PutUint16(buf[off:off+2], uint16(s))
		off += bytesPerSample
	}
	return buf
}

func mergeChunks(chunks [][]int16, total int) []int16 {
	merged := make([]int16, 0, total)
	for _, c := range chunks {
		merged = append(merged, c...)
	}
	return merged
}
