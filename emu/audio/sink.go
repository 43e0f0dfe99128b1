/*
 * CTREMU - Audio sinks
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sink consumes interleaved stereo samples.
type Sink interface {
	Name() string
	Push(samples []int16) error
	Close() error
}

// NullSink throws samples away.
type NullSink struct{}

func (NullSink) Name() string { return "null" }
func (NullSink) Push(_ []int16) error { return nil }
func (NullSink) Close() error { return nil }

// WavSink streams samples to a WAV file.
type WavSink struct {
	file   *os.File
	enc    *wav.Encoder
	buffer *goaudio.IntBuffer
}

// Create WAV file for output.
func NewWavSink(fileName string) (*WavSink, error) {
	if fileName == "" {
		return nil, errors.New("wav sink needs a file name")
	}
	f, err := os.Create(fileName)
	if err != nil {
		return nil, fmt.Errorf("wav sink: %w", err)
	}
	enc := wav.NewEncoder(f, SampleRate, 16, NumChannels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: NumChannels, SampleRate: SampleRate},
		Data:           make([]int, SamplesPerFrame*NumChannels),
		SourceBitDepth: 16,
	}
	return &WavSink{file: f, enc: enc, buffer: buf}, nil
}

func (w *WavSink) Name() string {
	return "wav"
}

func (w *WavSink) Push(samples []int16) error {
	w.buffer.Data = w.buffer.Data[:0]
	for _, s := range samples {
		w.buffer.Data = append(w.buffer.Data, int(s))
	}
	return w.enc.Write(w.buffer)
}

// Finish header and close file.
func (w *WavSink) Close() error {
	err := w.enc.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Choose sink by id, device is the file name for wav.
func NewSink(id string, device string) (Sink, error) {
	switch id {
	case "", "null", "auto":
		return NullSink{}, nil
	case "wav":
		return NewWavSink(device)
	}
	return nil, errors.New("unknown audio sink: " + id)
}
