package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lantern/internal/testutil"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 44100
	testBlockSize  = 256
)

var testConfig = StreamConfig{SampleRate: testSampleRate, BlockSize: testBlockSize}

// fakeStream records lifecycle calls. The callback handed to paOpenStream is
// kept so tests can drive it.
type fakeStream struct {
	startErr error
	stopErr  error

	mu      sync.Mutex
	started bool
	stops   int
	closes  int
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return s.startErr
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return s.stopErr
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func stubDevices(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig := paDevicesFunc
	t.Cleanup(func() { paDevicesFunc = orig })
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, err }
}

// stubOpen replaces paOpenStream and returns the callback slot and open counter.
func stubOpen(t *testing.T, s *fakeStream, openErr error) (*func([]float32), *atomic.Int32) {
	t.Helper()
	orig := paOpenStream
	t.Cleanup(func() { paOpenStream = orig })

	var cb func([]float32)
	var opens atomic.Int32
	paOpenStream = func(p portaudio.StreamParameters, fn func([]float32)) (stream, error) {
		opens.Add(1)
		if openErr != nil {
			return nil, openErr
		}
		assert.Equal(t, 1, p.Input.Channels, "capture is always mono")
		assert.Equal(t, testBlockSize, p.FramesPerBuffer)
		cb = fn
		return s, nil
	}
	return &cb, &opens
}

func info(name string, in, out int) *portaudio.DeviceInfo {
	return &portaudio.DeviceInfo{Name: name, MaxInputChannels: in, MaxOutputChannels: out, DefaultSampleRate: testSampleRate}
}

func devs(names ...string) []Device {
	out := make([]Device, len(names))
	for i, n := range names {
		out[i] = Device{Index: i, Name: n, MaxInputChannels: 2}
	}
	return out
}

func TestSelectLoopbackDevice(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		want    int
		ok      bool
	}{
		{"stereo mix preferred over earlier device", devs("Line In", "Stereo Mix (Realtek)"), 1, true},
		{"keyword match is case-insensitive", devs("Microphone", "LOOPBACK Audio"), 1, true},
		{"pulse monitor", devs("Built-in Mic", "Monitor of Built-in Audio"), 1, true},
		{"localized keyword", devs("Микрофон", "Стерео микшер"), 1, true},
		{"what u hear", devs("What U Hear (Sound Blaster)"), 0, true},
		{"fallback skips microphones and inputs", devs("USB Microphone", "Line Input", "Virtual Cable"), 2, true},
		{"fallback skips localized mic", devs("Микрофон гарнитуры", "Cable"), 1, true},
		{"only microphones", devs("Microphone", "Headset Mic", "Вход линии"), -1, false},
		{"empty list", nil, -1, false},
		{"keyword on output-only device is ignored", []Device{
			{Index: 0, Name: "Speakers", MaxOutputChannels: 2},
			{Index: 1, Name: "Mic Array", MaxInputChannels: 2},
		}, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectLoopbackDevice(tt.devices)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindDevice(t *testing.T) {
	list := devs("Built-in Audio", "Scarlett 2i2")
	idx, ok := FindDevice(list, "scarlett")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = FindDevice(list, "nope")
	assert.False(t, ok)
}

func TestHostDevices(t *testing.T) {
	stubDevices(t, []*portaudio.DeviceInfo{
		info("Mic", 1, 0),
		nil,
		{Name: "Monitor", MaxInputChannels: 2, HostApi: &portaudio.HostApiInfo{Name: "ALSA"}},
	}, nil)

	devices, err := HostDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, 0, devices[0].Index)
	assert.Equal(t, 2, devices[1].Index)
	assert.Equal(t, "ALSA", devices[1].HostAPI)
}

func TestHostDevicesError(t *testing.T) {
	stubDevices(t, nil, fmt.Errorf("mock error"))
	_, err := HostDevices()
	assert.ErrorContains(t, err, "mock error")
}

func TestStartLoopbackWithoutDeviceNeverCallsBack(t *testing.T) {
	stubDevices(t, []*portaudio.DeviceInfo{info("Microphone", 1, 0), info("Speakers", 0, 2)}, nil)
	_, opens := stubOpen(t, &fakeStream{}, nil)

	var calls atomic.Int32
	c, err := StartLoopback(testConfig, func([]float32) { calls.Add(1) })
	assert.Nil(t, c)

	var ce *CaptureError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrNoLoopbackDevice)
	assert.Zero(t, opens.Load(), "no stream may be opened")

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestStartLoopbackNamedDeviceMissing(t *testing.T) {
	stubDevices(t, []*portaudio.DeviceInfo{info("Stereo Mix", 2, 0)}, nil)
	_, err := StartLoopback(StreamConfig{SampleRate: testSampleRate, BlockSize: testBlockSize, DeviceName: "scarlett"}, func([]float32) {})
	assert.ErrorIs(t, err, ErrNoLoopbackDevice)
}

func TestStartLoopbackDeliversFrames(t *testing.T) {
	stubDevices(t, []*portaudio.DeviceInfo{info("Microphone", 1, 0), info("Stereo Mix", 2, 0)}, nil)
	s := &fakeStream{}
	cb, _ := stubOpen(t, s, nil)

	var got [][]float32
	c, err := StartLoopback(testConfig, func(in []float32) {
		got = append(got, append([]float32(nil), in...))
	})
	require.NoError(t, err)
	assert.Equal(t, "Stereo Mix", c.Device().Name)
	assert.True(t, s.started)

	frame := testutil.SineWave(testBlockSize, testSampleRate, 440, 0.5)
	(*cb)(frame)
	(*cb)(frame)
	assert.Len(t, got, 2)
	assert.Equal(t, uint64(2), c.Frames())

	require.NoError(t, c.Stop())
	(*cb)(frame)
	assert.Len(t, got, 2, "no frames after Stop")
}

func TestStopIsIdempotent(t *testing.T) {
	stubDevices(t, []*portaudio.DeviceInfo{info("Loopback", 2, 0)}, nil)
	s := &fakeStream{}
	stubOpen(t, s, nil)

	c, err := StartLoopback(testConfig, func([]float32) {})
	require.NoError(t, err)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	assert.Equal(t, 1, s.stops)
	assert.Equal(t, 1, s.closes)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}

	var nilCapture *Capture
	assert.NoError(t, nilCapture.Stop())
}

func TestStopToleratesStoppedStream(t *testing.T) {
	stubDevices(t, []*portaudio.DeviceInfo{info("Loopback", 2, 0)}, nil)
	s := &fakeStream{stopErr: errors.New("PaErrorCode -9986: Stream is stopped")}
	stubOpen(t, s, nil)

	c, err := StartLoopback(testConfig, func([]float32) {})
	require.NoError(t, err)
	assert.NoError(t, c.Stop())
	assert.Equal(t, 1, s.closes)
}

func TestStartFailures(t *testing.T) {
	dev := Device{Index: 0, Name: "Loopback", MaxInputChannels: 2}

	t.Run("open error", func(t *testing.T) {
		stubOpen(t, &fakeStream{}, errors.New("device busy"))
		_, err := Start(dev, testConfig, func([]float32) {})
		var ce *CaptureError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "Loopback", ce.Device)
		assert.ErrorContains(t, err, "device busy")
	})

	t.Run("start error closes stream", func(t *testing.T) {
		s := &fakeStream{startErr: errors.New("no permission")}
		stubOpen(t, s, nil)
		_, err := Start(dev, testConfig, func([]float32) {})
		assert.ErrorContains(t, err, "no permission")
		assert.Equal(t, 1, s.closes)
	})

	t.Run("output-only device", func(t *testing.T) {
		_, err := Start(Device{Name: "Speakers", MaxOutputChannels: 2}, testConfig, func([]float32) {})
		assert.Error(t, err)
	})

	t.Run("bad config", func(t *testing.T) {
		_, err := Start(dev, StreamConfig{SampleRate: 0, BlockSize: 10}, func([]float32) {})
		assert.Error(t, err)
	})
}

func TestRecordThenReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	rec, err := NewRecorder(path, testSampleRate, testBlockSize)
	require.NoError(t, err)

	const blocks = 4
	tone := testutil.SineWave(testBlockSize, testSampleRate, 1000, 0.5)
	for i := 0; i < blocks; i++ {
		require.NoError(t, rec.Write(tone))
	}
	assert.Equal(t, blocks, rec.Frames())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	assert.Error(t, rec.Write(tone))

	var (
		mu  sync.Mutex
		got [][]float32
	)
	c, err := StartFile(path, testConfig, func(in []float32) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, append([]float32(nil), in...))
	})
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, blocks)
	for i := range tone {
		assert.InDelta(t, tone[i], got[0][i], 1e-3)
	}
	assert.NoError(t, c.Stop())
}

func TestStartFileRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	rec, err := NewRecorder(path, 22050, testBlockSize)
	require.NoError(t, err)
	require.NoError(t, rec.Write(testutil.Silence(testBlockSize)))
	require.NoError(t, rec.Close())

	_, err = StartFile(path, testConfig, func([]float32) {})
	var ce *CaptureError
	require.ErrorAs(t, err, &ce)
	assert.ErrorContains(t, err, "sample rate")

	_, err = StartFile(filepath.Join(t.TempDir(), "missing.wav"), testConfig, func([]float32) {})
	assert.Error(t, err)
}

func TestStartFileRejectsInvalidContainers(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"wav", "junk.wav", "not a valid WAV file"},
		{"aiff", "junk.aiff", "not a valid AIFF file"},
		{"aif", "junk.aif", "not a valid AIFF file"},
		{"unknown extension decodes as wav", "junk.pcm", "not a valid WAV file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

			_, err := StartFile(path, testConfig, func([]float32) {})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestStopFileReplayEarly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	rec, err := NewRecorder(path, testSampleRate, testBlockSize)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, rec.Write(testutil.Silence(testBlockSize)))
	}
	require.NoError(t, rec.Close())

	var calls atomic.Int32
	c, err := StartFile(path, testConfig, func([]float32) { calls.Add(1) })
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Stop())

	seen := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, calls.Load(), "Stop halts delivery synchronously")
	assert.Less(t, int(seen), 200)
}
