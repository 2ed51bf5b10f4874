package remote

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("192.168.1.20")

	if cfg.SignallingURL != "ws://192.168.1.20:8443" {
		t.Errorf("SignallingURL = %q", cfg.SignallingURL)
	}
	if cfg.ProducerName != "glide-unit" {
		t.Errorf("ProducerName = %q", cfg.ProducerName)
	}
	if cfg.SampleRate != 48000 || cfg.Channels != 1 {
		t.Errorf("audio format = %d/%d, want 48000/1", cfg.SampleRate, cfg.Channels)
	}
}

func TestMatchProducer(t *testing.T) {
	listMsg := []byte(`{
		"type": "producers",
		"producers": [
			{"id": "aaa-111", "meta": {"name": "screen-share"}},
			{"id": "bbb-222", "meta": {"name": "glide-unit"}}
		]
	}`)

	t.Run("found", func(t *testing.T) {
		id, err := matchProducer(listMsg, "glide-unit")
		if err != nil {
			t.Fatalf("matchProducer error: %v", err)
		}
		if id != "bbb-222" {
			t.Errorf("id = %q, want bbb-222", id)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := matchProducer(listMsg, "other-unit")
		if err == nil {
			t.Fatal("expected error for missing producer")
		}
		if !strings.Contains(err.Error(), "other-unit") {
			t.Errorf("error should name the producer: %v", err)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		if _, err := matchProducer([]byte("{nope"), "glide-unit"); err == nil {
			t.Error("expected error for invalid json")
		}
	})
}

func TestPCM16Bytes(t *testing.T) {
	samples := []int16{0, 1, -1, 258, -32768}
	out := pcm16Bytes(samples)

	want := []byte{
		0x00, 0x00,
		0x01, 0x00,
		0xff, 0xff,
		0x02, 0x01,
		0x00, 0x80,
	}
	if !bytes.Equal(out, want) {
		t.Errorf("pcm16Bytes = % x, want % x", out, want)
	}
}

func TestDecoderSkipsSmallInput(t *testing.T) {
	d := NewDecoder(0)

	frame, err := d.Write([]byte{0x00, 0x00, 0x01})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if frame != nil {
		t.Error("tiny NAL buffer should not produce a frame")
	}
	if d.Frames() != 0 {
		t.Errorf("Frames = %d, want 0", d.Frames())
	}
}

func TestDecoderRateLimit(t *testing.T) {
	d := NewDecoder(time.Hour)

	payload := make([]byte, 4096)
	frame, err := d.Write(payload)
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if frame != nil {
		t.Error("decode should be rate limited")
	}
	if d.Latest() != nil {
		t.Error("Latest should be nil before any decode")
	}
}

func TestValidJPEG(t *testing.T) {
	if validJPEG([]byte{0xff, 0xd8}) {
		t.Error("short data should be invalid")
	}
	if validJPEG(make([]byte, 2048)) {
		t.Error("zero bytes should be invalid")
	}

	// Encode a patterned image large enough to pass the size floor
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if !validJPEG(buf.Bytes()) {
		t.Errorf("real %d byte JPEG should be valid", buf.Len())
	}
}

func TestClientNoFrame(t *testing.T) {
	c := NewClient(DefaultConfig("localhost"))

	if _, err := c.GetFrame(); err == nil {
		t.Error("GetFrame should fail before any frame")
	}

	start := time.Now()
	if _, err := c.WaitForFrame(60 * time.Millisecond); err == nil {
		t.Error("WaitForFrame should time out")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("WaitForFrame returned after %v, should poll until the deadline", elapsed)
	}
}

func TestClientInitialState(t *testing.T) {
	c := NewClient(DefaultConfig("localhost"))

	if c.Connected() {
		t.Error("Connected should be false before Connect")
	}
	if c.SampleRate() != 48000 {
		t.Errorf("SampleRate = %d, want 48000", c.SampleRate())
	}

	stats := c.GetStats()
	if stats.VideoPackets != 0 || stats.FramesDecoded != 0 {
		t.Errorf("stats should start at zero: %+v", stats)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
}
