// Package device describes the audio/video capture and playback contract
// the Media Session consumes. Per spec §6 these are "consumed, not
// defined": this module owns only the interface shape, never a concrete
// microphone, speaker, WAV reader, or MP4 demuxer implementation. Callers
// supply their own device handles (or the in-repo io.Reader/io.Writer
// adapters in this package) at Media Session creation time.
package device

import "io"

// AudioFormat enumerates the PCM/companded sample layouts spec §6 lists
// for audio devices.
type AudioFormat int

const (
	AudioPCM16LE AudioFormat = iota
	AudioPCM16BE
	AudioG711Ulaw
	AudioG711Alaw
)

// VideoFormat enumerates the frame layouts spec §6 lists for video
// devices.
type VideoFormat int

const (
	VideoYUV420P VideoFormat = iota
	VideoNV12
	VideoH264
	VideoH265
	VideoMJPEG
)

// AudioCapture yields a lazy sequence of audio frames at a fixed sample
// format, rate, and channel count.
type AudioCapture interface {
	// ReadAudio fills buf with up to `samples` samples and returns the
	// number actually read, or an error (including io.EOF at end of
	// stream). A short read is not an error.
	ReadAudio(buf []byte, samples int) (int, error)
}

// AudioPlayback accepts decoded audio frames for output.
type AudioPlayback interface {
	WriteAudio(data []byte, samples int) (int, error)
}

// VideoCapture yields a lazy sequence of encoded or raw video frames.
type VideoCapture interface {
	ReadVideo(buf []byte) (int, error)
}

// VideoDisplay accepts video frames for rendering.
type VideoDisplay interface {
	WriteVideo(data []byte) (int, error)
}

// ReaderCapture adapts any io.Reader (a WAV file, a pipe) into an
// AudioCapture. Reads fewer than requested bytes are reported as partial
// reads rather than errors, matching ReadAudio's contract.
type ReaderCapture struct {
	R          io.Reader
	BytesPerSample int
}

func (c *ReaderCapture) ReadAudio(buf []byte, samples int) (int, error) {
	want := samples * c.BytesPerSample
	if want > len(buf) {
		want = len(buf)
	}
	n, err := io.ReadFull(c.R, buf[:want])
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n / c.BytesPerSample, err
}

// WriterPlayback adapts any io.Writer into an AudioPlayback.
type WriterPlayback struct {
	W io.Writer
}

func (p *WriterPlayback) WriteAudio(data []byte, samples int) (int, error) {
	n, err := p.W.Write(data)
	return n, err
}

// TeeRecord wraps an AudioPlayback so that every frame written to it is
// also written to a record sink, per spec §9's definition of recording
// as an additional sink invoked whenever RTP payloads reach playback.
type TeeRecord struct {
	Playback AudioPlayback
	Record   AudioPlayback
}

func (t *TeeRecord) WriteAudio(data []byte, samples int) (int, error) {
	if t.Record != nil {
		_, _ = t.Record.WriteAudio(data, samples)
	}
	return t.Playback.WriteAudio(data, samples)
}
